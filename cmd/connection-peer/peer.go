package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/DuckSquadDev/ducknet"
	"github.com/pkg/errors"
)

var errQuit = errors.New("quit")

// peer is a chat endpoint. Everything except the line reader runs on the
// goroutine calling loop.
type peer struct {
	opts      []ducknet.Option
	listener  *ducknet.Listener
	conns     []*ducknet.Connection
	connected map[*ducknet.Connection]bool
	out       io.Writer
}

func newPeer(opts []ducknet.Option, out io.Writer) *peer {
	return &peer{opts: opts, connected: make(map[*ducknet.Connection]bool), out: out}
}

func (p *peer) listen(s string) error {
	addr, err := ducknet.ParseAddress(s, DefaultPort)
	if err != nil {
		return err
	}
	l, err := ducknet.Listen(addr, p.opts...)
	if err != nil {
		return err
	}
	p.listener = l
	fmt.Fprintf(p.out, "Listening on %v\n", l.Addr())
	return nil
}

func (p *peer) connect(s string) error {
	addr, err := ducknet.ParseAddress(s, DefaultPort)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Connecting to: %v...\n", addr)
	c, err := ducknet.Dial(addr, p.opts...)
	if err != nil {
		return err
	}
	p.conns = append(p.conns, c)
	return nil
}

func (p *peer) handleLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "/q" || line == "/quit":
		return errQuit
	case strings.HasPrefix(line, "/connect "):
		if err := p.connect(strings.TrimSpace(strings.TrimPrefix(line, "/connect "))); err != nil {
			fmt.Fprintf(p.out, "Unable to connect: %v\n", err)
		}
	case line == "/stats":
		if len(p.conns) == 0 {
			fmt.Fprintln(p.out, "No connections")
		}
		for _, c := range p.conns {
			fmt.Fprintf(p.out, "%v (%v): %v\n", c.RemoteAddr(), c.State(), c.Stats())
		}
	case strings.HasPrefix(line, "/"):
		fmt.Fprintf(p.out, "Unknown command %v\n", line)
	case line == "":
	default:
		sent := 0
		for _, c := range p.conns {
			if c.State() != ducknet.Connected {
				continue
			}
			if _, err := c.Send([]byte(line), ducknet.DefaultChannel, ducknet.ReliableOrdered, ducknet.MediumPriority); err != nil {
				log.Errorf("Unable to send to %v: %v", c.RemoteAddr(), err)
				continue
			}
			sent++
		}
		if sent == 0 {
			fmt.Fprintln(p.out, "Not connected")
			return nil
		}
		fmt.Fprintf(p.out, "You: %v\n", line)
	}
	return nil
}

func (p *peer) tick() {
	if p.listener != nil {
		ok, err := p.listener.HasConnectionRequest()
		if err != nil {
			log.Errorf("Unable to poll listener: %v", err)
		}
		for ok {
			c, err := p.listener.Accept()
			if err != nil {
				log.Errorf("Unable to accept: %v", err)
				break
			}
			p.conns = append(p.conns, c)
			ok = p.listener.State() == ducknet.RequestPending
		}
	}
	live := p.conns[:0]
	for _, c := range p.conns {
		if err := c.Update(); err != nil {
			fmt.Fprintf(p.out, "Lost %v: %v\n", c.RemoteAddr(), err)
			c.Close()
			delete(p.connected, c)
			continue
		}
		if c.State() == ducknet.Connected && !p.connected[c] {
			p.connected[c] = true
			fmt.Fprintf(p.out, "Connected to %v\n", c.RemoteAddr())
		}
		for {
			m, ok := c.Receive()
			if !ok {
				break
			}
			fmt.Fprintf(p.out, "%v: %s\n", c.RemoteAddr(), m.Payload)
			m.Release()
		}
		live = append(live, c)
	}
	p.conns = live
}

// loop ticks every interval and handles lines until ctx is done or the user
// quits. Once lines is closed the peer keeps running without input.
func (p *peer) loop(ctx context.Context, interval time.Duration, lines <-chan string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				log.Debug("End of input")
				lines = nil
				continue
			}
			if err := p.handleLine(line); err != nil {
				return err
			}
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *peer) close() {
	for _, c := range p.conns {
		c.Close()
	}
	p.conns = nil
	if p.listener != nil {
		p.listener.Close()
	}
}
