package client

import (
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
)

// Role decides who sends the first offer on a link. The member that was
// already in the room initiates towards the newcomer.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

type LinkState int

const (
	StateIdle LinkState = iota
	StateOfferPending
	StateAnswerPending
	StateEstablished
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferPending:
		return "offer_pending"
	case StateAnswerPending:
		return "answer_pending"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PeerLink negotiates one media link with one remote in one room.
// All methods except the local candidate callback run on the client loop.
type PeerLink struct {
	remote domain.ConnectionID
	role   Role
	state  LinkState
	media  core.MediaLink

	send    func(SignalPayload) error
	onState func(LinkState)

	remoteReady bool
	pending     []webrtc.ICECandidateInit

	// closed is read from media library goroutines.
	closed atomic.Bool
	logger zerolog.Logger
}

func newPeerLink(remote domain.ConnectionID, role Role, send func(SignalPayload) error, logger zerolog.Logger) *PeerLink {
	return &PeerLink{
		remote: remote,
		role:   role,
		send:   send,
		logger: logger.With().Str("remote", string(remote)).Str("role", role.String()).Logger(),
	}
}

func (l *PeerLink) Remote() domain.ConnectionID { return l.remote }
func (l *PeerLink) Role() Role                  { return l.role }
func (l *PeerLink) State() LinkState            { return l.state }

// Start sends the first offer. Only an idle initiator does anything; a link
// that already moved on (an inbound offer arrived first) is left alone.
func (l *PeerLink) Start() error {
	if l.closed.Load() {
		return ErrLinkClosed
	}
	if l.role != RoleInitiator || l.state != StateIdle {
		l.logger.Debug().Str("state", l.state.String()).Msg("start skipped")
		return nil
	}
	l.setState(StateOfferPending)
	offer, err := l.media.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.send(offerSignal(offer)); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

// HandleSignal applies one inbound payload. Any returned error means the
// link must be closed.
func (l *PeerLink) HandleSignal(p SignalPayload) error {
	if l.closed.Load() {
		return ErrLinkClosed
	}
	switch p.Type {
	case signalOffer:
		return l.handleOffer(p)
	case signalAnswer:
		return l.handleAnswer(p)
	case signalCandidate:
		if p.Candidate == nil {
			return fmt.Errorf("candidate without body: %w", ErrMalformedSignal)
		}
		return l.handleCandidate(*p.Candidate)
	}
	return fmt.Errorf("type %q: %w", p.Type, ErrMalformedSignal)
}

func (l *PeerLink) handleOffer(p SignalPayload) error {
	switch l.state {
	case StateOfferPending:
		return fmt.Errorf("offer in %s: %w", l.state, ErrUnexpectedOffer)
	case StateAnswerPending, StateEstablished:
		l.logger.Debug().Str("state", l.state.String()).Msg("renegotiation")
	}
	l.setState(StateAnswerPending)
	answer, err := l.media.ApplyOffer(p.description())
	if err != nil {
		return fmt.Errorf("apply offer: %w", err)
	}
	if err := l.remoteDescriptionApplied(); err != nil {
		return err
	}
	if err := l.send(answerSignal(answer)); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	l.setState(StateEstablished)
	return nil
}

func (l *PeerLink) handleAnswer(p SignalPayload) error {
	if l.state != StateOfferPending {
		return fmt.Errorf("answer in %s: %w", l.state, ErrUnexpectedAnswer)
	}
	if err := l.media.ApplyAnswer(p.description()); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	if err := l.remoteDescriptionApplied(); err != nil {
		return err
	}
	l.setState(StateEstablished)
	return nil
}

func (l *PeerLink) handleCandidate(c webrtc.ICECandidateInit) error {
	if !l.remoteReady {
		l.pending = append(l.pending, c)
		l.logger.Debug().Int("queued", len(l.pending)).Msg("candidate before remote description")
		return nil
	}
	if err := l.media.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// remoteDescriptionApplied replays candidates that arrived too early, in
// arrival order.
func (l *PeerLink) remoteDescriptionApplied() error {
	l.remoteReady = true
	queued := l.pending
	l.pending = nil
	for _, c := range queued {
		if err := l.media.AddICECandidate(c); err != nil {
			return fmt.Errorf("add queued candidate: %w", err)
		}
	}
	return nil
}

// onLocalCandidate is handed to the media factory and may run on any
// goroutine. Nothing is sent once the link is closed.
func (l *PeerLink) onLocalCandidate(c webrtc.ICECandidateInit) {
	if l.closed.Load() {
		return
	}
	if err := l.send(candidateSignal(c)); err != nil {
		l.logger.Debug().Err(err).Msg("candidate not sent")
	}
}

// Close is idempotent.
func (l *PeerLink) Close() {
	if l.closed.Swap(true) {
		return
	}
	if l.media != nil {
		l.media.Close()
	}
	l.pending = nil
	l.setState(StateClosed)
}

func (l *PeerLink) setState(s LinkState) {
	if l.state == s {
		return
	}
	l.logger.Debug().Str("from", l.state.String()).Str("to", s.String()).Msg("link state")
	l.state = s
	if l.onState != nil {
		l.onState(s)
	}
}
