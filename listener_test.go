package ducknet

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerAcceptWithoutRequest(t *testing.T) {
	n := newMemNetwork()
	l := NewListener(n.socket("10.0.0.2", 2000))
	ok, err := l.HasConnectionRequest()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Listening, l.State())
	c, err := l.Accept()
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, ErrNoConnectionRequest))
}

func TestListenerDeduplicatesRequests(t *testing.T) {
	n := newMemNetwork()
	sock := n.socket("10.0.0.2", 2000)
	l := NewListener(sock)
	first, second := NewAddress("10.0.0.1", 1000), NewAddress("10.0.0.3", 3000)
	firstID := uuid.New()
	sock.inject(first, encodeConnectionRequest(firstID))
	sock.inject(first, encodeConnectionRequest(uuid.New()))
	sock.inject(second, encodeConnectionRequest(uuid.New()))

	ok, err := l.HasConnectionRequest()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RequestPending, l.State())

	c, err := l.Accept()
	require.NoError(t, err)
	assert.Equal(t, first, c.RemoteAddr())
	assert.Equal(t, firstID, c.ID())
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, sock.addr, c.LocalAddr())

	c, err = l.Accept()
	require.NoError(t, err)
	assert.Equal(t, second, c.RemoteAddr())
	assert.Equal(t, Listening, l.State())
	_, err = l.Accept()
	assert.True(t, errors.Is(err, ErrNoConnectionRequest))

	// a late duplicate from an accepted peer does not create another request
	sock.inject(first, encodeConnectionRequest(firstID))
	ok, err = l.HasConnectionRequest()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListenerDropsUnknownDatagrams(t *testing.T) {
	n := newMemNetwork()
	sock := n.socket("10.0.0.2", 2000)
	l := NewListener(sock)
	stranger := NewAddress("10.0.0.9", 9000)
	sock.inject(stranger, []byte{packetTypeData, 1, 2, 3})
	sock.inject(stranger, []byte{})
	bad := encodeConnectionRequest(uuid.New())
	bad[1] = 0
	sock.inject(stranger, bad)
	sock.inject(stranger, encodeConnectionRequest(uuid.New())[:64])

	ok, err := l.HasConnectionRequest()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sock.inbox)
}

func TestListenerRoutesPackets(t *testing.T) {
	clock := newTestClock()
	n := newMemNetwork()
	clientSock := n.socket("10.0.0.1", 1000)
	serverSock := n.socket("10.0.0.2", 2000)
	client := NewConnection(serverSock.addr, clientSock, ClockOption(clock.Now))
	l := NewListener(serverSock, ClockOption(clock.Now))

	require.NoError(t, client.Update())
	_, err := l.HasConnectionRequest()
	require.NoError(t, err)
	server, err := l.Accept()
	require.NoError(t, err)
	require.NoError(t, server.Update())
	require.NoError(t, client.Update())
	require.Equal(t, Connected, client.State())

	_, err = client.Send([]byte("ping"), DefaultChannel, Unreliable, HighPriority)
	require.NoError(t, err)
	require.NoError(t, client.Update())
	require.NoError(t, l.Poll())
	assert.Equal(t, []string{"ping"}, payloads(server))

	_, err = server.Send([]byte("pong"), 7, Reliable, HighPriority)
	require.NoError(t, err)
	require.NoError(t, server.Update())
	require.NoError(t, client.Update())
	assert.Equal(t, []string{"pong"}, payloads(client))

	// a closed connection no longer receives packets
	require.NoError(t, server.Close())
	_, err = client.Send([]byte("gone"), DefaultChannel, Unreliable, HighPriority)
	require.NoError(t, err)
	require.NoError(t, client.Update())
	require.NoError(t, l.Poll())
	assert.Empty(t, serverSock.inbox)
	assert.False(t, serverSock.closed)
}

func TestListenerClose(t *testing.T) {
	n := newMemNetwork()
	sock := n.socket("10.0.0.2", 2000)
	l := NewListener(sock)
	sock.inject(NewAddress("10.0.0.1", 1000), encodeConnectionRequest(uuid.New()))
	sock.inject(NewAddress("10.0.0.3", 3000), encodeConnectionRequest(uuid.New()))
	_, err := l.HasConnectionRequest()
	require.NoError(t, err)
	c, err := l.Accept()
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.Equal(t, Closed, c.State())
	assert.Equal(t, Listening, l.State())
	assert.False(t, sock.closed, "socket passed to NewListener stays open")
	_, err = l.Accept()
	assert.True(t, errors.Is(err, ErrListenerClosed))
	_, err = l.HasConnectionRequest()
	assert.True(t, errors.Is(err, ErrListenerClosed))
	assert.NoError(t, l.Close())
}

func TestListenerBoundsPendingRequests(t *testing.T) {
	n := newMemNetwork()
	sock := n.socket("10.0.0.2", 2000)
	l := NewListener(sock, MaxPendingRequestsOption(2))
	for port := uint16(1); port <= 5; port++ {
		sock.inject(NewAddress("10.0.0.9", port), encodeConnectionRequest(uuid.New()))
	}
	ok, err := l.HasConnectionRequest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, l.requests, 2)
	assert.Len(t, l.requested, 2)

	c, err := l.Accept()
	require.NoError(t, err)
	assert.Equal(t, NewAddress("10.0.0.9", 1), c.RemoteAddr())

	// a dropped sender gets in once it retries and there is room
	sock.inject(NewAddress("10.0.0.9", 4), encodeConnectionRequest(uuid.New()))
	_, err = l.HasConnectionRequest()
	require.NoError(t, err)
	assert.Len(t, l.requests, 2)
	_, err = l.Accept()
	require.NoError(t, err)
	c, err = l.Accept()
	require.NoError(t, err)
	assert.Equal(t, NewAddress("10.0.0.9", 4), c.RemoteAddr())
}
