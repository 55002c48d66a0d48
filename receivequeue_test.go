package ducknet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestReceiveQueue(t *testing.T) {
	q := newReceiveQueue(4)
	var got []uint32
	deliver := func(m Message) {
		got = append(got, m.Sequence)
	}
	add := func(mode DeliveryMode, seq uint32) error {
		return q.add(Message{Mode: mode, Sequence: seq}, deliver)
	}
	shouldDeliver := func(expected ...uint32) {
		t.Helper()
		assert.Equal(t, expected, got)
		got = nil
	}

	assert.NoError(t, add(ReliableOrdered, 0))
	shouldDeliver(0)

	// frames can be added out of order
	assert.NoError(t, add(ReliableOrdered, 2))
	assert.NoError(t, add(ReliableOrdered, 3))
	shouldDeliver()
	assert.Equal(t, 2, q.held())
	assert.NoError(t, add(ReliableOrdered, 1))
	shouldDeliver(1, 2, 3)
	assert.Equal(t, 0, q.held())

	// adding the same sequence again should have no effect
	assert.True(t, errors.Is(add(ReliableOrdered, 3), ErrDuplicateOrStale))
	assert.NoError(t, add(ReliableOrdered, 5))
	assert.True(t, errors.Is(add(ReliableOrdered, 5), ErrDuplicateOrStale))
	shouldDeliver()

	// reliable messages skip the line but keep their place
	assert.NoError(t, add(Reliable, 6))
	shouldDeliver(6)
	assert.True(t, errors.Is(add(Reliable, 6), ErrDuplicateOrStale))
	assert.NoError(t, add(Reliable, 4))
	shouldDeliver(4, 5)

	assert.True(t, errors.Is(add(ReliableOrdered, 11), ErrDuplicateOrStale), "beyond the window")
	assert.NoError(t, add(ReliableOrdered, 7))
	shouldDeliver(7)
}

func TestReceiveQueueWraps(t *testing.T) {
	q := newReceiveQueue(MaxTrackedMessages)
	q.next = 0xfffffffe
	var got []uint32
	deliver := func(m Message) {
		got = append(got, m.Sequence)
	}
	assert.NoError(t, q.add(Message{Mode: ReliableOrdered, Sequence: 1}, deliver))
	assert.NoError(t, q.add(Message{Mode: ReliableOrdered, Sequence: 0xffffffff}, deliver))
	assert.NoError(t, q.add(Message{Mode: ReliableOrdered, Sequence: 0}, deliver))
	assert.Empty(t, got)
	assert.NoError(t, q.add(Message{Mode: ReliableOrdered, Sequence: 0xfffffffe}, deliver))
	assert.Equal(t, []uint32{0xfffffffe, 0xffffffff, 0, 1}, got)
	assert.True(t, errors.Is(q.add(Message{Mode: ReliableOrdered, Sequence: 0xffffffff}, deliver), ErrDuplicateOrStale))
}
