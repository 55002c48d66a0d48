package ducknet

import (
	"fmt"

	"github.com/DuckSquadDev/ducknet/bitstream"
	pool "github.com/libp2p/go-buffer-pool"
)

// DeliveryMode selects the guarantees for a message.
type DeliveryMode uint8

const (
	// Unreliable messages are sent once and may be lost, duplicated or
	// reordered.
	Unreliable DeliveryMode = iota
	// Reliable messages are retransmitted until acknowledged and delivered
	// once, in arrival order.
	Reliable
	// ReliableOrdered messages are reliable and delivered in the order they
	// were sent on their channel.
	ReliableOrdered

	// endOfRecords terminates the records of a packet.
	endOfRecords
)

const modeBits = 2

func (m DeliveryMode) isReliable() bool {
	return m == Reliable || m == ReliableOrdered
}

func (m DeliveryMode) String() string {
	switch m {
	case Unreliable:
		return "unreliable"
	case Reliable:
		return "reliable"
	case ReliableOrdered:
		return "reliable-ordered"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Priority orders the send queue. Higher priorities are packed first.
type Priority uint8

const (
	LowPriority Priority = iota
	MediumPriority
	HighPriority
)

// Channel is an application chosen lane with its own sequence space.
type Channel uint8

// Message is a payload travelling over a Connection. Payload holds BitLen
// bits, MSB-first.
//
// Received messages own a pooled payload buffer. Call Release once the
// payload is no longer needed.
type Message struct {
	ID       MessageID
	Payload  []byte
	BitLen   int
	Mode     DeliveryMode
	Channel  Channel
	Priority Priority
	Sequence uint32
}

// Release hands the payload buffer back to the pool.
func (m *Message) Release() {
	if m.Payload != nil {
		pool.Put(m.Payload)
		m.Payload = nil
	}
}

func lengthBits(mtu int) int {
	return bitstream.BitsRequired(0, uint64(mtu*8))
}

// recordBits returns the number of bits m occupies inside a packet.
func recordBits(mtu int, mode DeliveryMode, bitLen int) int {
	n := modeBits + 8 + lengthBits(mtu) + bitLen
	if mode.isReliable() {
		n += 32
	}
	return n
}

func serializeMode(s bitstream.Stream, mode *DeliveryMode) error {
	v := uint64(*mode)
	if err := s.SerializeBits(&v, modeBits); err != nil {
		return err
	}
	*mode = DeliveryMode(v)
	return nil
}

// serializeRecord encodes or decodes one message record. When reading, the
// payload is taken from the buffer pool.
func serializeRecord(s bitstream.Stream, m *Message, mtu int) error {
	if err := serializeMode(s, &m.Mode); err != nil {
		return err
	}
	if m.Mode == endOfRecords {
		return nil
	}
	ch := uint8(m.Channel)
	if err := bitstream.SerializeUint8(s, &ch); err != nil {
		return err
	}
	m.Channel = Channel(ch)
	if m.Mode.isReliable() {
		if err := bitstream.SerializeUint32(s, &m.Sequence); err != nil {
			return err
		}
		if !s.IsWriting() {
			m.ID = makeMessageID(m.Channel, m.Sequence)
		}
	} else if !s.IsWriting() {
		m.ID = NoMessageID
	}
	bitLen := uint64(m.BitLen)
	if err := bitstream.SerializeUint(s, &bitLen, 0, uint64(mtu*8)); err != nil {
		return err
	}
	if bitLen == 0 {
		return nil
	}
	if !s.IsWriting() {
		if int(bitLen) > s.BitsLeft() {
			return bitstream.ErrBufferExhausted
		}
		m.BitLen = int(bitLen)
		m.Payload = pool.Get((m.BitLen + 7) >> 3)
	}
	return s.SerializeBlock(m.Payload, m.BitLen)
}
