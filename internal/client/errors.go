package client

import "errors"

var (
	// protocol errors: the link that saw them is closed
	ErrMalformedSignal  = errors.New("malformed signal payload")
	ErrUnexpectedAnswer = errors.New("answer without pending offer")
	ErrUnexpectedOffer  = errors.New("offer while own offer pending")
	ErrLinkClosed       = errors.New("peer link closed")

	// resource errors: surfaced to the caller of Join
	ErrCaptureUnavailable = errors.New("capture device unavailable")

	ErrAlreadyJoined   = errors.New("room already joined")
	ErrNotJoined       = errors.New("room not joined")
	ErrTransportClosed = errors.New("transport closed")
	ErrClientStopped   = errors.New("client stopped")
)
