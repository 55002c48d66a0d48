package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DuckSquadDev/ducknet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLine(t *testing.T) {
	var out bytes.Buffer
	p := newPeer(nil, &out)
	assert.Equal(t, errQuit, p.handleLine("/q"))
	assert.Equal(t, errQuit, p.handleLine("/quit"))

	assert.NoError(t, p.handleLine("hello"))
	assert.Contains(t, out.String(), "Not connected")
	out.Reset()
	assert.NoError(t, p.handleLine("/stats"))
	assert.Contains(t, out.String(), "No connections")
	out.Reset()
	assert.NoError(t, p.handleLine("/dance"))
	assert.Contains(t, out.String(), "Unknown command /dance")
	out.Reset()
	assert.NoError(t, p.handleLine("/connect host:notaport"))
	assert.Contains(t, out.String(), "Unable to connect")
	assert.Empty(t, p.conns)
}

func TestPeersChat(t *testing.T) {
	var outA, outB bytes.Buffer
	opts := []ducknet.Option{ducknet.PollTimeoutOption(time.Millisecond)}
	a := newPeer(opts, &outA)
	require.NoError(t, a.listen("127.0.0.1:0"))
	defer a.close()
	b := newPeer(opts, &outB)
	defer b.close()
	require.NoError(t, b.handleLine("/connect "+a.listener.Addr().String()))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(outB.String(), "Connected to") {
		b.tick()
		a.tick()
	}
	require.Contains(t, outB.String(), "Connected to")
	require.NoError(t, b.handleLine("quack"))
	assert.Contains(t, outB.String(), "You: quack")

	for time.Now().Before(deadline) && !strings.Contains(outA.String(), "quack") {
		b.tick()
		a.tick()
	}
	assert.Contains(t, outA.String(), ": quack")

	outB.Reset()
	require.NoError(t, b.handleLine("/stats"))
	assert.Contains(t, outB.String(), "connected")
}

func TestLoopStopsOnQuit(t *testing.T) {
	var out bytes.Buffer
	p := newPeer(nil, &out)
	lines := make(chan string, 2)
	lines <- "/quit"
	assert.Equal(t, errQuit, p.loop(context.Background(), time.Millisecond, lines))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.loop(ctx, time.Millisecond, make(chan string)))
}

func TestLoopOutlivesInput(t *testing.T) {
	var out bytes.Buffer
	p := newPeer(nil, &out)
	lines := make(chan string)
	close(lines)
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.loop(ctx, time.Millisecond, lines))
	assert.True(t, time.Since(start) >= 50*time.Millisecond, "kept ticking after end of input")
}

func TestReadLinesStopsWhenDone(t *testing.T) {
	lines := make(chan string)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		readLines(strings.NewReader("one\ntwo\nthree\n"), lines, done)
		close(finished)
	}()
	assert.Equal(t, "one", <-lines)
	close(done)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("reader still blocked")
	}
}

func TestRunQuits(t *testing.T) {
	var out bytes.Buffer
	cfg := defaultConfig()
	cfg.Listen = "127.0.0.1:0"
	err := run(context.Background(), cfg, strings.NewReader("/q\n"), &out)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Listening on 127.0.0.1:")
}
