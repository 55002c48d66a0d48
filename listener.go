package ducknet

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ListenerState tells whether a Listener has connection requests waiting.
type ListenerState int

const (
	Listening ListenerState = iota
	RequestPending
)

func (s ListenerState) String() string {
	switch s {
	case Listening:
		return "listening"
	case RequestPending:
		return "request pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type connectionRequestFrom struct {
	from Address
	id   uuid.UUID
}

// Listener accepts connections on a bound socket. Accepted connections share
// the socket; the listener reads it and hands their packets over, so the
// owner keeps calling HasConnectionRequest (or Poll) while any accepted
// connection is in use.
type Listener struct {
	socket     PacketSocket
	ownsSocket bool
	opts       *options
	requests   []connectionRequestFrom
	requested  map[Address]bool
	conns      map[Address]*Connection
	buf        []byte
	closed     bool
}

// Listen binds a UDP socket to addr and listens on it.
func Listen(addr Address, opts ...Option) (*Listener, error) {
	o := newOptions(opts)
	socket, err := ListenUDP(addr, o.pollTimeout)
	if err != nil {
		return nil, err
	}
	l := newListener(socket, o)
	l.ownsSocket = true
	log.Debugf("Listening on %v", socket.LocalAddr())
	return l, nil
}

// NewListener listens on an already bound socket. Closing the listener
// leaves the socket open.
func NewListener(socket PacketSocket, opts ...Option) *Listener {
	return newListener(socket, newOptions(opts))
}

func newListener(socket PacketSocket, o *options) *Listener {
	bufSize := o.mtu
	if bufSize < ConnectionRequestSize {
		bufSize = ConnectionRequestSize
	}
	return &Listener{
		socket:    socket,
		opts:      o,
		requested: make(map[Address]bool),
		conns:     make(map[Address]*Connection),
		buf:       make([]byte, bufSize+1),
	}
}

func (l *Listener) Addr() Address {
	return l.socket.LocalAddr()
}

func (l *Listener) State() ListenerState {
	if len(l.requests) > 0 {
		return RequestPending
	}
	return Listening
}

// HasConnectionRequest reads every datagram waiting on the socket without
// blocking and reports whether a connection request is ready to Accept.
func (l *Listener) HasConnectionRequest() (bool, error) {
	err := l.Poll()
	return len(l.requests) > 0, err
}

// Poll reads every datagram waiting on the socket. Connection requests are
// buffered, packets of accepted connections are handed to them and anything
// else is dropped.
func (l *Listener) Poll() error {
	if l.closed {
		return ErrListenerClosed
	}
	for {
		n, from, err := l.socket.ReceiveFrom(l.buf)
		if errors.Is(err, ErrWouldBlock) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "receive")
		}
		l.route(from, l.buf[:n])
	}
}

func (l *Listener) route(from Address, data []byte) {
	if c, found := l.conns[from]; found {
		if err := c.HandlePacket(data); err != nil {
			log.Errorf("Dropping packet from %v: %v", from, err)
		}
		return
	}
	if packetType(data) != packetTypeConnectionRequest {
		log.Tracef("Dropping %d bytes from unknown peer %v", len(data), from)
		return
	}
	req, err := decodeConnectionRequest(data)
	if err != nil {
		log.Debugf("Dropping connection request from %v: %v", from, err)
		return
	}
	if l.requested[from] {
		log.Tracef("Connection request from %v already pending", from)
		return
	}
	if len(l.requests) >= l.opts.maxPendingRequests {
		log.Debugf("Dropping connection request from %v, %d requests pending", from, len(l.requests))
		return
	}
	l.requested[from] = true
	l.requests = append(l.requests, connectionRequestFrom{from: from, id: req.ConnectionID})
	log.Debugf("New connection request %v from %v", req.ConnectionID, from)
}

// Accept returns a connection for the oldest buffered request, or
// ErrNoConnectionRequest if there is none. It never blocks.
func (l *Listener) Accept() (*Connection, error) {
	if l.closed {
		return nil, ErrListenerClosed
	}
	if len(l.requests) == 0 {
		return nil, ErrNoConnectionRequest
	}
	req := l.requests[0]
	l.requests = l.requests[1:]
	delete(l.requested, req.from)

	c := newConnection(req.id, req.from, l.socket, l.opts, Connected)
	c.shared = true
	// answer right away so the peer leaves Connecting
	c.ackPending = true
	c.onClose = l.remove
	l.conns[req.from] = c
	log.Debugf("Accepted connection %v from %v", req.id, req.from)
	return c, nil
}

func (l *Listener) remove(c *Connection) {
	delete(l.conns, c.remote)
}

// Close closes every accepted connection and drops pending requests. The
// socket is closed if the listener was created by Listen.
func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	for _, c := range l.conns {
		c.Close()
	}
	l.closed = true
	l.requests = nil
	if l.ownsSocket {
		return l.socket.Close()
	}
	return nil
}
