package core

import "errors"

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame is a raw text payload as it travels over the signaling socket.
type Frame []byte

// SignalConnection abstracts the server side of one client's messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: it either queues the frame or fails with
// ErrBackpressure / ErrConnectionClosed.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
