package ducknet

import (
	"time"
)

type datagram struct {
	from Address
	data []byte
}

// memNetwork delivers datagrams between memSockets synchronously.
type memNetwork struct {
	sockets map[Address]*memSocket
}

func newMemNetwork() *memNetwork {
	return &memNetwork{sockets: make(map[Address]*memSocket)}
}

func (n *memNetwork) socket(host string, port uint16) *memSocket {
	s := &memSocket{network: n, addr: NewAddress(host, port)}
	n.sockets[s.addr] = s
	return s
}

type memSocket struct {
	network *memNetwork
	addr    Address
	inbox   []datagram
	// drop returns true for outgoing datagrams that should be lost.
	drop   func(to Address, b []byte) bool
	sent   int
	closed bool
}

func (s *memSocket) SendTo(addr Address, b []byte) error {
	if s.closed {
		return ErrConnectionClosed
	}
	s.sent++
	if s.drop != nil && s.drop(addr, b) {
		return nil
	}
	dst := s.network.sockets[addr]
	if dst == nil || dst.closed {
		return nil
	}
	dst.inbox = append(dst.inbox, datagram{from: s.addr, data: append([]byte(nil), b...)})
	return nil
}

func (s *memSocket) ReceiveFrom(b []byte) (int, Address, error) {
	if len(s.inbox) == 0 {
		return 0, Address{}, ErrWouldBlock
	}
	d := s.inbox[0]
	s.inbox = s.inbox[1:]
	return copy(b, d.data), d.from, nil
}

func (s *memSocket) LocalAddr() Address {
	return s.addr
}

func (s *memSocket) Close() error {
	s.closed = true
	return nil
}

func (s *memSocket) inject(from Address, b []byte) {
	s.inbox = append(s.inbox, datagram{from: from, data: b})
}

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func payloads(c *Connection) []string {
	var got []string
	for {
		m, ok := c.Receive()
		if !ok {
			return got
		}
		got = append(got, string(m.Payload[:(m.BitLen+7)>>3]))
		m.Release()
	}
}
