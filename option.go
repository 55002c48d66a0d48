package ducknet

import (
	"time"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultRequestInterval      = 100 * time.Millisecond
	defaultMinRetransmitTimeout = 100 * time.Millisecond
	defaultAgingPackets         = 16
	defaultMaxPacketsPerTick    = 8
	defaultMaxPendingRequests   = 64
)

// options holds the configuration shared by connections and listeners.
type options struct {
	mtu                  int
	timeout              time.Duration // no packet received for this long closes the connection
	requestInterval      time.Duration // connection request resend interval while connecting
	minRetransmitTimeout time.Duration
	agingPackets         int
	maxPacketsPerTick    int
	maxPendingRequests   int // connection requests a listener buffers before dropping new ones
	pollTimeout          time.Duration
	now                  func() time.Time
	metrics              *Metrics
}

// Option is a function that configures a Connection or Listener.
type Option func(*options)

// MTUOption sets the maximum packet size in bytes. Both peers must use the
// same MTU.
func MTUOption(mtu int) Option {
	return func(o *options) {
		o.mtu = mtu
	}
}

// TimeoutOption sets how long a connection may go without receiving a
// packet before Update reports ErrConnectionTimedOut.
func TimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// RequestIntervalOption sets how often a dialing connection resends its
// connection request.
func RequestIntervalOption(d time.Duration) Option {
	return func(o *options) {
		o.requestInterval = d
	}
}

// MinRetransmitTimeoutOption sets the floor of the retransmission timeout.
func MinRetransmitTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.minRetransmitTimeout = d
	}
}

// AgingPacketsOption sets after how many packed packets a waiting message
// is promoted one priority tier. Zero or less disables aging.
func AgingPacketsOption(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = -1
		}
		o.agingPackets = n
	}
}

// MaxPacketsPerTickOption bounds the packets one Update call sends.
func MaxPacketsPerTickOption(n int) Option {
	return func(o *options) {
		o.maxPacketsPerTick = n
	}
}

// MaxPendingRequestsOption bounds the connection requests a Listener keeps
// waiting for Accept. Requests beyond it are dropped; their senders retry.
func MaxPendingRequestsOption(n int) Option {
	return func(o *options) {
		o.maxPendingRequests = n
	}
}

// PollTimeoutOption sets how long a UDP socket opened by Dial or Listen
// waits for a datagram on each receive.
func PollTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// ClockOption replaces time.Now, mainly for tests.
func ClockOption(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// MetricsOption makes the connection report to m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// minMTU leaves room for the header and one small record.
const minMTU = 64

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	checkOptions(o)
	return o
}

func checkOptions(o *options) {
	if o.mtu <= 0 {
		o.mtu = DefaultMTU
	}
	if o.mtu < minMTU {
		o.mtu = minMTU
	}
	if o.timeout <= 0 {
		o.timeout = defaultTimeout
	}
	if o.requestInterval <= 0 {
		o.requestInterval = defaultRequestInterval
	}
	if o.minRetransmitTimeout <= 0 {
		o.minRetransmitTimeout = defaultMinRetransmitTimeout
	}
	if o.agingPackets == 0 {
		o.agingPackets = defaultAgingPackets
	}
	if o.maxPacketsPerTick <= 0 {
		o.maxPacketsPerTick = defaultMaxPacketsPerTick
	}
	if o.maxPendingRequests <= 0 {
		o.maxPendingRequests = defaultMaxPendingRequests
	}
	if o.pollTimeout <= 0 {
		o.pollTimeout = DefaultPollTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
}
