// Package coretest provides in-memory implementations of the core
// transport interfaces for tests.
package coretest

import (
	"slices"
	"sync"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/protocol"
)

// RecordingConn is a server side core.SignalConnection that keeps every
// frame it accepts.
type RecordingConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *RecordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, slices.Clone(f))
	return nil
}

func (c *RecordingConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// SetFull makes TrySend report backpressure.
func (c *RecordingConn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RecordingConn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

func (c *RecordingConn) Types() []protocol.MessageType {
	return types(c.Frames())
}

func (c *RecordingConn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// RecordingTransport is a client side core.Transport. Sent frames are kept;
// inbound frames are injected with Push.
type RecordingTransport struct {
	mu     sync.Mutex
	sent   []core.Frame
	in     chan core.Frame
	closed bool
}

func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{in: make(chan core.Frame, 64)}
}

func (t *RecordingTransport) Send(f core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrConnectionClosed
	}
	t.sent = append(t.sent, slices.Clone(f))
	return nil
}

func (t *RecordingTransport) Incoming() <-chan core.Frame { return t.in }

func (t *RecordingTransport) Push(f core.Frame) { t.in <- f }

func (t *RecordingTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.in)
	}
}

func (t *RecordingTransport) Sent() []core.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sent)
}

func (t *RecordingTransport) SentTypes() []protocol.MessageType {
	return types(t.Sent())
}

// Loopback joins a client Transport directly to a server side
// SignalConnection. Frames the client sends go to the function given to
// Attach; frames the server pushes land on Incoming.
type Loopback struct {
	mu      sync.Mutex
	in      chan core.Frame
	deliver func(core.Frame)
	closed  bool
}

func NewLoopback(buffer int) *Loopback {
	return &Loopback{in: make(chan core.Frame, buffer)}
}

// Attach sets the server entry point, typically a controller's Dispatch.
func (l *Loopback) Attach(deliver func(core.Frame)) {
	l.mu.Lock()
	l.deliver = deliver
	l.mu.Unlock()
}

func (l *Loopback) TrySend(f core.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return core.ErrConnectionClosed
	}
	select {
	case l.in <- slices.Clone(f):
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (l *Loopback) Send(f core.Frame) error {
	l.mu.Lock()
	deliver, closed := l.deliver, l.closed
	l.mu.Unlock()
	if closed || deliver == nil {
		return core.ErrConnectionClosed
	}
	deliver(f)
	return nil
}

func (l *Loopback) Incoming() <-chan core.Frame { return l.in }

func (l *Loopback) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.in)
	}
}

func types(frames []core.Frame) []protocol.MessageType {
	out := make([]protocol.MessageType, 0, len(frames))
	for _, f := range frames {
		t, _ := protocol.PeekType(f)
		out = append(out, t)
	}
	return out
}
