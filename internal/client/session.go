package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

// Observer receives presentation updates. Calls are made on the client loop
// and must not block.
type Observer interface {
	OnRoster(room domain.RoomID, participants []domain.Participant)
	OnLinkState(room domain.RoomID, remote domain.ConnectionID, state LinkState)
}

type nopObserver struct{}

func (nopObserver) OnRoster(domain.RoomID, []domain.Participant)              {}
func (nopObserver) OnLinkState(domain.RoomID, domain.ConnectionID, LinkState) {}

// Session is this client's membership in one room: it owns one PeerLink per
// remote member and shares one capture source between them.
type Session struct {
	room        domain.RoomID
	displayName string
	muted       bool

	transport core.Transport
	factory   core.MediaLinkFactory
	audio     core.AudioSource
	observer  Observer

	links  map[domain.ConnectionID]*PeerLink
	roster []domain.Participant
	closed bool

	self       func() domain.ConnectionID
	offerDelay time.Duration
	schedule   func(time.Duration, func())
	logger     zerolog.Logger
}

type sessionConfig struct {
	room        domain.RoomID
	displayName string
	transport   core.Transport
	factory     core.MediaLinkFactory
	audio       core.AudioSource
	observer    Observer
	self        func() domain.ConnectionID
	offerDelay  time.Duration
	schedule    func(time.Duration, func())
	logger      zerolog.Logger
}

func newSession(cfg sessionConfig) *Session {
	if cfg.observer == nil {
		cfg.observer = nopObserver{}
	}
	if cfg.self == nil {
		cfg.self = func() domain.ConnectionID { return "" }
	}
	return &Session{
		room:        cfg.room,
		displayName: cfg.displayName,
		transport:   cfg.transport,
		factory:     cfg.factory,
		audio:       cfg.audio,
		observer:    cfg.observer,
		links:       make(map[domain.ConnectionID]*PeerLink),
		self:        cfg.self,
		offerDelay:  cfg.offerDelay,
		schedule:    cfg.schedule,
		logger:      cfg.logger.With().Str("room", string(cfg.room)).Logger(),
	}
}

func (s *Session) Room() domain.RoomID { return s.room }
func (s *Session) Muted() bool         { return s.muted }

// Roster returns a copy of the last roster received for this room.
func (s *Session) Roster() []domain.Participant { return slices.Clone(s.roster) }

// LinkStates reports the state of every live link.
func (s *Session) LinkStates() map[domain.ConnectionID]LinkState {
	out := make(map[domain.ConnectionID]LinkState, len(s.links))
	for id, l := range s.links {
		out[id] = l.State()
	}
	return out
}

func (s *Session) join() error {
	return s.sendFrame(protocol.Join{Type: protocol.TypeJoin, RoomID: s.room, DisplayName: s.displayName})
}

// onRoster stores the roster and closes links to remotes that are no longer
// listed. It never creates links.
func (s *Session) onRoster(participants []domain.Participant) {
	if s.closed {
		return
	}
	s.roster = slices.Clone(participants)
	for id := range s.links {
		if !s.inRoster(id) {
			s.closeLink(id, "not in roster")
		}
	}
	s.observer.OnRoster(s.room, s.Roster())
}

// onMemberJoined makes this client the initiator towards the newcomer.
func (s *Session) onMemberJoined(id domain.ConnectionID) {
	if s.closed || id == s.self() {
		return
	}
	if _, ok := s.links[id]; ok {
		s.logger.Debug().Str("remote", string(id)).Msg("link exists, joined ignored")
		return
	}
	l, err := s.createLink(id, RoleInitiator)
	if err != nil {
		s.logger.Error().Err(err).Str("remote", string(id)).Msg("create link")
		return
	}
	s.startLink(l)
}

func (s *Session) onMemberLeft(id domain.ConnectionID) {
	if s.closed {
		return
	}
	s.roster = slices.DeleteFunc(s.roster, func(p domain.Participant) bool { return p.ConnectionID == id })
	s.closeLink(id, "member left")
}

func (s *Session) inRoster(id domain.ConnectionID) bool {
	return slices.ContainsFunc(s.roster, func(p domain.Participant) bool { return p.ConnectionID == id })
}

// onSignal routes a relayed payload. An unknown sender gets a responder link
// before the payload is applied.
func (s *Session) onSignal(from domain.ConnectionID, raw json.RawMessage) {
	if s.closed || from == s.self() {
		return
	}
	payload, perr := parseSignal(raw)

	l, ok := s.links[from]
	if !ok {
		if perr != nil {
			s.logger.Warn().Err(perr).Str("remote", string(from)).Msg("signal dropped")
			return
		}
		if s.roster != nil && !s.inRoster(from) {
			s.logger.Debug().Str("remote", string(from)).Msg("signal from non-member dropped")
			return
		}
		var err error
		if l, err = s.createLink(from, RoleResponder); err != nil {
			s.logger.Error().Err(err).Str("remote", string(from)).Msg("create link")
			return
		}
	}
	if perr != nil {
		s.failLink(l, perr)
		return
	}
	if err := l.HandleSignal(payload); err != nil {
		s.failLink(l, err)
	}
}

// setMuted never touches links: the shared source is gated instead.
func (s *Session) setMuted(muted bool) error {
	s.muted = muted
	if s.audio != nil {
		s.audio.SetEnabled(!muted)
	}
	return s.sendFrame(protocol.MuteChanged{Type: protocol.TypeMuteChanged, RoomID: s.room, Muted: muted})
}

// leave closes every link, releases capture and then tells the server.
func (s *Session) leave() error {
	if s.closed {
		return nil
	}
	s.shutdown()
	return s.sendFrame(protocol.Leave{Type: protocol.TypeLeave, RoomID: s.room})
}

// shutdown releases local resources without notifying the server.
func (s *Session) shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	for id := range s.links {
		s.closeLink(id, "session closed")
	}
	if s.audio != nil {
		s.audio.Close()
		s.audio = nil
	}
	s.roster = nil
}

func (s *Session) createLink(remote domain.ConnectionID, role Role) (*PeerLink, error) {
	l := newPeerLink(remote, role, func(p SignalPayload) error {
		return s.sendSignal(remote, p)
	}, s.logger)
	l.onState = func(st LinkState) { s.observer.OnLinkState(s.room, remote, st) }

	media, err := s.factory.NewLink(remote, l.onLocalCandidate)
	if err != nil {
		return nil, fmt.Errorf("new media link: %w", err)
	}
	l.media = media
	if s.audio != nil {
		if err := media.AttachAudio(s.audio); err != nil {
			media.Close()
			return nil, fmt.Errorf("attach audio: %w", err)
		}
	}
	s.links[remote] = l
	s.logger.Info().Str("remote", string(remote)).Str("role", role.String()).Msg("link created")
	return l, nil
}

func (s *Session) startLink(l *PeerLink) {
	run := func() {
		if s.links[l.remote] != l {
			return
		}
		if err := l.Start(); err != nil {
			s.failLink(l, err)
		}
	}
	if s.offerDelay > 0 && s.schedule != nil {
		s.schedule(s.offerDelay, run)
		return
	}
	run()
}

func (s *Session) failLink(l *PeerLink, err error) {
	lvl := zerolog.WarnLevel
	if !isProtocolError(err) {
		lvl = zerolog.ErrorLevel
	}
	s.logger.WithLevel(lvl).Err(err).Str("remote", string(l.remote)).Msg("link failed")
	s.closeLink(l.remote, "error")
}

func (s *Session) closeLink(remote domain.ConnectionID, reason string) {
	l, ok := s.links[remote]
	if !ok {
		return
	}
	delete(s.links, remote)
	l.Close()
	s.logger.Info().Str("remote", string(remote)).Str("reason", reason).Msg("link closed")
}

func (s *Session) sendSignal(to domain.ConnectionID, p SignalPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return s.sendFrame(protocol.SignalRequest{
		Type:               protocol.TypeSignal,
		RoomID:             s.room,
		TargetConnectionID: to,
		Payload:            raw,
	})
}

func (s *Session) sendFrame(v any) error {
	b, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return s.transport.Send(core.Frame(b))
}

func isProtocolError(err error) bool {
	return errors.Is(err, ErrMalformedSignal) ||
		errors.Is(err, ErrUnexpectedAnswer) ||
		errors.Is(err, ErrUnexpectedOffer) ||
		errors.Is(err, ErrLinkClosed)
}
