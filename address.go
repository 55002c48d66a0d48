package ducknet

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// Address is a remote endpoint. It is comparable and can be used as a map key.
type Address struct {
	Host string
	Port uint16
}

func NewAddress(host string, port uint16) Address {
	return Address{Host: host, Port: port}
}

// ParseAddress parses "host:port". When the port is missing, defaultPort is
// used.
func ParseAddress(s string, defaultPort uint16) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		if s == "" {
			return Address{}, errors.Wrapf(err, "parse address %q", s)
		}
		// no port given
		return Address{Host: s, Port: defaultPort}, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, errors.Wrapf(err, "parse port of %q", s)
	}
	return Address{Host: host, Port: uint16(port)}, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// Resolve returns the address with its host resolved to an IP, so that it
// compares equal to the source addresses reported by a socket.
func (a Address) Resolve() (Address, error) {
	ua, err := net.ResolveUDPAddr("udp", a.String())
	if err != nil {
		return Address{}, errors.Wrapf(err, "resolve %v", a)
	}
	return addressFromUDP(ua), nil
}

func (a Address) udpAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", a.String())
}

func addressFromUDP(ua *net.UDPAddr) Address {
	ip := ua.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return Address{Host: ip.String(), Port: uint16(ua.Port)}
}
