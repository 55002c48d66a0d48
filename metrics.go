package ducknet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports transport counters to Prometheus. One Metrics is meant to
// be shared by every connection of a process; a nil *Metrics records nothing.
type Metrics struct {
	packetsSent      prometheus.Counter
	packetsReceived  prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	malformedPackets prometheus.Counter
	retransmits      prometheus.Counter
	messagesAcked    prometheus.Counter
	duplicates       prometheus.Counter
	rtt              prometheus.Histogram
	connections      prometheus.Gauge
}

// NewMetrics registers the transport metrics with reg under the ducknet
// namespace. A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ducknet",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		packetsSent:      counter("packets_sent_total", "Total number of packets sent"),
		packetsReceived:  counter("packets_received_total", "Total number of data packets received"),
		bytesSent:        counter("bytes_sent_total", "Total number of bytes sent in data packets"),
		bytesReceived:    counter("bytes_received_total", "Total number of bytes received in data packets"),
		malformedPackets: counter("malformed_packets_total", "Total number of discarded malformed packets"),
		retransmits:      counter("retransmits_total", "Total number of reliable messages queued for retransmission"),
		messagesAcked:    counter("messages_acked_total", "Total number of reliable messages acknowledged by the peer"),
		duplicates:       counter("duplicate_messages_total", "Total number of duplicate or stale reliable messages dropped"),
		rtt: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ducknet",
			Name:      "rtt_seconds",
			Help:      "Round trip time measured from acknowledged packets",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ducknet",
			Name:      "connections",
			Help:      "Number of open connections",
		}),
	}
}

func (m *Metrics) packetSent(n int) {
	if m == nil {
		return
	}
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) packetReceived(n int) {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) malformed() {
	if m != nil {
		m.malformedPackets.Inc()
	}
}

func (m *Metrics) retransmit() {
	if m != nil {
		m.retransmits.Inc()
	}
}

func (m *Metrics) acked() {
	if m != nil {
		m.messagesAcked.Inc()
	}
}

func (m *Metrics) observeRTT(rtt time.Duration) {
	if m != nil {
		m.rtt.Observe(rtt.Seconds())
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) opened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.connections.Dec()
	}
}
