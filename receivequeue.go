package ducknet

import (
	"github.com/pkg/errors"
)

type slot struct {
	filled bool
	// set for reliable messages already handed out, which only hold their
	// sequence number in the ordered stream
	delivered bool
	msg       Message
}

// receiveQueue orders the reliable messages of one channel. It is a ring
// buffer of fixed size; a message with sequence s lives at s % size, which
// works because the sender never has more than size sequence numbers in
// flight on a channel. Reliable messages are delivered as soon as they
// arrive, reliable-ordered ones once every earlier sequence has arrived.
type receiveQueue struct {
	buf  []slot
	size uint32
	// next is the sequence number the ordered stream waits for.
	next uint32
}

func newReceiveQueue(size int) *receiveQueue {
	return &receiveQueue{
		buf:  make([]slot, size),
		size: uint32(size),
	}
}

// add stores m and calls deliver for every message that became deliverable,
// in order. It returns ErrDuplicateOrStale without taking ownership of m if
// the sequence was seen before or lies outside the window.
func (rq *receiveQueue) add(m Message, deliver func(Message)) error {
	d := m.Sequence - rq.next
	if int32(d) < 0 {
		return errors.Wrapf(ErrDuplicateOrStale, "sequence %d already delivered", m.Sequence)
	}
	if d >= rq.size {
		return errors.Wrapf(ErrDuplicateOrStale, "sequence %d beyond window starting at %d", m.Sequence, rq.next)
	}
	idx := m.Sequence % rq.size
	if rq.buf[idx].filled {
		// retransmission
		return errors.Wrapf(ErrDuplicateOrStale, "sequence %d already received", m.Sequence)
	}
	if m.Mode == ReliableOrdered {
		rq.buf[idx] = slot{filled: true, msg: m}
	} else {
		rq.buf[idx] = slot{filled: true, delivered: true}
		deliver(m)
	}
	for {
		s := &rq.buf[rq.next%rq.size]
		if !s.filled {
			return nil
		}
		if !s.delivered {
			deliver(s.msg)
		}
		*s = slot{}
		rq.next++
	}
}

// held returns the number of ordered messages waiting for a gap to fill.
func (rq *receiveQueue) held() int {
	n := 0
	for i := range rq.buf {
		if rq.buf[i].filled && !rq.buf[i].delivered {
			n++
		}
	}
	return n
}

func (rq *receiveQueue) close() {
	for i := range rq.buf {
		rq.buf[i].msg.Release()
		rq.buf[i] = slot{}
	}
}
