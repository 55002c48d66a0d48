package ducknet

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// PacketSocket is the datagram socket a Connection or Listener is driven
// over. ReceiveFrom must not block for long; it returns ErrWouldBlock when
// no datagram is pending.
type PacketSocket interface {
	SendTo(addr Address, b []byte) error
	ReceiveFrom(b []byte) (int, Address, error)
	LocalAddr() Address
	Close() error
}

// DefaultPollTimeout is how long ReceiveFrom on a UDPSocket waits for a
// datagram before reporting ErrWouldBlock.
const DefaultPollTimeout = time.Millisecond

// UDPSocket is a PacketSocket over a bound UDP socket.
type UDPSocket struct {
	conn        *net.UDPConn
	pollTimeout time.Duration
	resolved    map[Address]*net.UDPAddr
}

// ListenUDP binds a UDP socket to addr. Port 0 picks an ephemeral port.
func ListenUDP(addr Address, pollTimeout time.Duration) (*UDPSocket, error) {
	ua, err := addr.udpAddr()
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %v", addr)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %v", addr)
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &UDPSocket{conn: conn, pollTimeout: pollTimeout, resolved: make(map[Address]*net.UDPAddr)}, nil
}

func (s *UDPSocket) SendTo(addr Address, b []byte) error {
	ua, found := s.resolved[addr]
	if !found {
		var err error
		ua, err = addr.udpAddr()
		if err != nil {
			return errors.Wrapf(err, "resolve %v", addr)
		}
		s.resolved[addr] = ua
	}
	_, err := s.conn.WriteToUDP(b, ua)
	return err
}

func (s *UDPSocket) ReceiveFrom(b []byte) (int, Address, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout))
	n, ua, err := s.conn.ReadFromUDP(b)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, Address{}, ErrWouldBlock
		}
		return 0, Address{}, err
	}
	return n, addressFromUDP(ua), nil
}

func (s *UDPSocket) LocalAddr() Address {
	return addressFromUDP(s.conn.LocalAddr().(*net.UDPAddr))
}

func (s *UDPSocket) Close() error {
	return s.conn.Close()
}
