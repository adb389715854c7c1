package client

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "candidate"
)

// SignalPayload is the negotiation message carried inside a relayed signal
// frame. The server never looks at it.
type SignalPayload struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func offerSignal(desc webrtc.SessionDescription) SignalPayload {
	return SignalPayload{Type: signalOffer, SDP: desc.SDP}
}

func answerSignal(desc webrtc.SessionDescription) SignalPayload {
	return SignalPayload{Type: signalAnswer, SDP: desc.SDP}
}

func candidateSignal(c webrtc.ICECandidateInit) SignalPayload {
	return SignalPayload{Type: signalCandidate, Candidate: &c}
}

func (p SignalPayload) description() webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if p.Type == signalAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: p.SDP}
}

func parseSignal(raw json.RawMessage) (SignalPayload, error) {
	var p SignalPayload
	if len(raw) == 0 {
		return p, fmt.Errorf("empty payload: %w", ErrMalformedSignal)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	switch p.Type {
	case signalOffer, signalAnswer:
		if p.SDP == "" {
			return p, fmt.Errorf("%s without sdp: %w", p.Type, ErrMalformedSignal)
		}
	case signalCandidate:
		// an empty candidate string is the end-of-candidates marker
		if p.Candidate == nil {
			return p, fmt.Errorf("candidate without body: %w", ErrMalformedSignal)
		}
	default:
		return p, fmt.Errorf("type %q: %w", p.Type, ErrMalformedSignal)
	}
	return p, nil
}
