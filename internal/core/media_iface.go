package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/teamvoice/internal/domain"
)

// MediaLink is one peer-to-peer audio link. The session drives it; the
// implementation owns the negotiation library.
type MediaLink interface {
	// AttachAudio adds the local capture track to the link.
	AttachAudio(src AudioSource) error
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOffer sets the remote offer and returns the applied local answer.
	ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. Callers must only use it
	// once a remote description is in place.
	AddICECandidate(webrtc.ICECandidateInit) error
	// Close stops all media resources, including remote audio output.
	Close()
}

type MediaLinkFactory interface {
	// NewLink creates a link towards remote. onCandidate receives locally
	// gathered candidates and may be called from any goroutine.
	NewLink(remote domain.ConnectionID, onCandidate func(webrtc.ICECandidateInit)) (MediaLink, error)
}

// AudioSource is an opened capture stream.
type AudioSource interface {
	Track() webrtc.TrackLocal
	// SetEnabled toggles outgoing audio for every link sharing this source.
	SetEnabled(enabled bool)
	Close()
}

type CaptureDevice interface {
	Open() (AudioSource, error)
}
