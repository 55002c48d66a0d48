package ducknet

import (
	"container/heap"
	"time"
)

// outgoing is a message owned by the connection from Send until it is
// packed (unreliable) or acknowledged (reliable). The same value sits in the
// send queue and, for reliable messages, in the pending table.
type outgoing struct {
	msg   Message
	index int
	order uint64
	// value of sendQueue.packed when the message was last enqueued
	enqueuedAt uint64
	queued     bool
	acked      bool
	sentAt     time.Time
	sends      int
}

func (o *outgoing) release() {
	o.msg.Release()
}

// sendQueue is a priority heap of outgoing messages, FIFO within a tier. A
// message gains one tier for every agingPackets packets packed while it
// waits, capped at HighPriority, so low priority traffic is never starved.
type sendQueue struct {
	items        []*outgoing
	nextOrder    uint64
	packed       uint64
	agingPackets int
}

func newSendQueue(agingPackets int) *sendQueue {
	return &sendQueue{agingPackets: agingPackets}
}

func (q *sendQueue) effective(o *outgoing) Priority {
	if q.agingPackets <= 0 {
		return o.msg.Priority
	}
	boost := (q.packed - o.enqueuedAt) / uint64(q.agingPackets)
	if boost >= uint64(HighPriority-o.msg.Priority) {
		return HighPriority
	}
	return o.msg.Priority + Priority(boost)
}

func (q *sendQueue) Len() int { return len(q.items) }

func (q *sendQueue) Less(i, j int) bool {
	pi, pj := q.effective(q.items[i]), q.effective(q.items[j])
	if pi != pj {
		return pi > pj
	}
	return q.items[i].order < q.items[j].order
}

func (q *sendQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *sendQueue) Push(x interface{}) {
	o := x.(*outgoing)
	o.index = len(q.items)
	q.items = append(q.items, o)
}

func (q *sendQueue) Pop() interface{} {
	n := len(q.items)
	o := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	o.index = -1
	return o
}

func (q *sendQueue) push(o *outgoing) {
	o.order = q.nextOrder
	q.nextOrder++
	o.enqueuedAt = q.packed
	o.queued = true
	heap.Push(q, o)
}

func (q *sendQueue) peek() *outgoing {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *sendQueue) pop() *outgoing {
	o := heap.Pop(q).(*outgoing)
	o.queued = false
	return o
}

// beginPacket restores heap order, which aging may have changed since the
// previous packet.
func (q *sendQueue) beginPacket() {
	heap.Init(q)
}

func (q *sendQueue) endPacket() {
	q.packed++
}

// drain empties the queue, releasing every message nobody else owns.
func (q *sendQueue) drain() {
	for _, o := range q.items {
		o.queued = false
		o.release()
	}
	q.items = nil
}
