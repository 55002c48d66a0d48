package ducknet

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats is a snapshot of a connection's counters.
type Stats struct {
	PacketsSent      uint64
	PacketsReceived  uint64
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	// Retransmits counts reliable messages queued again after their
	// retransmission timeout expired.
	Retransmits uint64
	Acked       uint64
	Duplicates  uint64
	Malformed   uint64
	// Queued and Pending describe the send side at the time of the snapshot.
	Queued  int
	Pending int
	RTT     time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("sent %v in %v packets, received %v in %v packets, rtt %v, %d queued, %d pending, %v retransmits, %v duplicates, %v malformed",
		humanize.Bytes(s.BytesSent), humanize.Comma(int64(s.PacketsSent)),
		humanize.Bytes(s.BytesReceived), humanize.Comma(int64(s.PacketsReceived)),
		s.RTT.Round(time.Microsecond), s.Queued, s.Pending,
		humanize.Comma(int64(s.Retransmits)), humanize.Comma(int64(s.Duplicates)), humanize.Comma(int64(s.Malformed)))
}
