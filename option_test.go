package ducknet

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := newOptions(nil)
	assert.Equal(t, DefaultMTU, o.mtu)
	assert.Equal(t, 10*time.Second, o.timeout)
	assert.Equal(t, 100*time.Millisecond, o.requestInterval)
	assert.Equal(t, 100*time.Millisecond, o.minRetransmitTimeout)
	assert.Equal(t, 16, o.agingPackets)
	assert.Equal(t, 64, o.maxPendingRequests)
	assert.Equal(t, DefaultPollTimeout, o.pollTimeout)
	assert.NotNil(t, o.now)
	assert.Nil(t, o.metrics)
}

func TestOptions(t *testing.T) {
	o := newOptions([]Option{
		MTUOption(500),
		TimeoutOption(time.Minute),
		RequestIntervalOption(time.Second),
		MinRetransmitTimeoutOption(time.Millisecond),
		AgingPacketsOption(0),
		MaxPacketsPerTickOption(2),
		MaxPendingRequestsOption(3),
		PollTimeoutOption(5 * time.Millisecond),
	})
	assert.Equal(t, 500, o.mtu)
	assert.Equal(t, time.Minute, o.timeout)
	assert.Equal(t, time.Second, o.requestInterval)
	assert.Equal(t, time.Millisecond, o.minRetransmitTimeout)
	assert.Equal(t, -1, o.agingPackets, "aging disabled")
	assert.Equal(t, 2, o.maxPacketsPerTick)
	assert.Equal(t, 3, o.maxPendingRequests)
	assert.Equal(t, 5*time.Millisecond, o.pollTimeout)

	assert.Equal(t, minMTU, newOptions([]Option{MTUOption(10)}).mtu)
}

func TestMaxPacketsPerTick(t *testing.T) {
	clock := newTestClock()
	n := newMemNetwork()
	sock := n.socket("10.0.0.1", 1000)
	c := newConnection(uuid.Nil, NewAddress("10.0.0.2", 2000), sock, newOptions([]Option{ClockOption(clock.Now), MaxPacketsPerTickOption(2)}), Connected)
	for i := 0; i < 5; i++ {
		_, err := c.Send(make([]byte, 1000), DefaultChannel, Unreliable, LowPriority)
		assert.NoError(t, err)
	}
	assert.NoError(t, c.Update())
	assert.Equal(t, 2, sock.sent)
	assert.NoError(t, c.Update())
	assert.NoError(t, c.Update())
	assert.Equal(t, 5, sock.sent)
	assert.NoError(t, c.Update())
	assert.Equal(t, 5, sock.sent, "nothing to send")
}
