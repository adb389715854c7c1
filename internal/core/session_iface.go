package core

// Transport is the client side of the signaling socket.
// Send is safe for concurrent use; Incoming is closed when the
// underlying connection is gone.
type Transport interface {
	Send(Frame) error
	Incoming() <-chan Frame
	Close()
}
