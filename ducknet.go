// Package ducknet is a small reliability layer over datagrams for exchanging
// game-state messages.
//
// A Connection queues messages with a delivery mode (unreliable, reliable or
// reliable-ordered), a channel and a priority, and packs them into MTU sized
// packets with the bitstream package. Every packet acknowledges the packets
// received from the peer; reliable messages stay in a pending table until a
// packet carrying them is acknowledged and are re-queued when the
// retransmission timer expires. A Listener accepts new peers on a bound
// socket.
//
// Nothing in this package starts goroutines or timers. The owner drives each
// connection from one goroutine by calling Update once per tick.
//
// Every datagram starts with an 8 bit packet type.
//
// Connection request, padded with zeros to ConnectionRequestSize bytes:
//
//	 ----------------------------------------------------------
//	|  type=1 (8)  |  protocol id (32)  |  connection id (128)  |
//	 ----------------------------------------------------------
//
// Data packet, bit packed and padded to a byte boundary at the end:
//
//	 -------------------------------------------------------------------------------
//	|  type=2 (8)  |  packet id (32)  |  ack (32)  |  ack bits (32)  |  records ...  |
//	 -------------------------------------------------------------------------------
//
// Ack is the newest packet id received from the peer and bit i of ack bits
// is set when packet ack-1-i was received as well.
//
// Message record:
//
//	 -------------------------------------------------------------------------------
//	|  mode (2)  |  channel (8)  |  sequence (32)  |  bit length  |  payload bits  |
//	 -------------------------------------------------------------------------------
//
// The sequence is present for reliable and reliable-ordered messages only.
// The bit length is ranged encoded over [0, MTU*8]. Mode 3 marks the end of
// the records when the packet has room for it.
package ducknet

import (
	"github.com/getlantern/golog"
	"github.com/pkg/errors"
)

const (
	// DefaultMTU is the default maximum packet size in bytes.
	DefaultMTU = 1200
	// NumAckBits is the number of packets preceding the newest acked packet
	// covered by one ack.
	NumAckBits = 32
	// MaxTrackedMessages bounds the reliable messages a connection keeps
	// queued or awaiting acknowledgement.
	MaxTrackedMessages = 256
	// DefaultChannel is the channel used when the application does not care.
	DefaultChannel Channel = 0
	// ConnectionRequestSize is the fixed size of a connection request
	// datagram.
	ConnectionRequestSize = 1 + 512

	protocolID uint32 = 0x44554b4e
)

// PacketID identifies an outgoing packet. Ids start at 1; an ack of 0 means
// nothing was received yet.
type PacketID uint32

// AckTrail is the bitmask of packets acknowledged behind the newest one.
type AckTrail uint32

// MessageID identifies a reliable message for its whole lifetime, including
// retransmissions.
type MessageID uint64

// NoMessageID is returned for unreliable messages. No channel and sequence
// pair maps to it.
const NoMessageID = ^MessageID(0)

func makeMessageID(ch Channel, seq uint32) MessageID {
	return MessageID(uint64(ch)<<32 | uint64(seq))
}

// Channel returns the channel the message was sent on.
func (id MessageID) Channel() Channel {
	return Channel(id >> 32)
}

// Sequence returns the message's sequence number within its channel.
func (id MessageID) Sequence() uint32 {
	return uint32(id)
}

var (
	ErrMessageTooLarge        = errors.New("message too large")
	ErrTooManyPendingMessages = errors.New("too many pending messages")
	ErrMalformedPacket        = errors.New("malformed packet")
	ErrDuplicateOrStale       = errors.New("duplicate or stale message")
	ErrNoConnectionRequest    = errors.New("no pending connection request")
	ErrConnectionClosed       = errors.New("connection closed")
	ErrListenerClosed         = errors.New("listener closed")
	ErrConnectionTimedOut     = errors.New("connection timed out")
	ErrUnexpectedProtocol     = errors.New("unexpected protocol id")
	ErrWouldBlock             = errors.New("no datagram available")
	log                       = golog.LoggerFor("ducknet")
)
