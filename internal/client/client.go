// Package client is the participant side of teamvoice: it joins rooms over
// a signaling transport and keeps one media link per remote member.
package client

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

type Options struct {
	Transport core.Transport
	Media     core.MediaLinkFactory
	Capture   core.CaptureDevice
	Observer  Observer
	// OfferDelay postpones the initiator's first offer.
	OfferDelay time.Duration
}

// Client owns every Session. All state is confined to the goroutine running
// Run; exported methods post work onto it and wait.
type Client struct {
	opts     Options
	self     domain.ConnectionID
	sessions map[domain.RoomID]*Session

	events  chan func()
	stopped chan struct{}
	logger  zerolog.Logger
}

func New(opts Options) *Client {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Client{
		opts:     opts,
		sessions: make(map[domain.RoomID]*Session),
		events:   make(chan func(), 16),
		stopped:  make(chan struct{}),
		logger:   log.With().Str("module", "client").Logger(),
	}
}

// Run processes inbound frames and posted calls until ctx is done or the
// transport closes. Sessions are shut down locally on exit.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.shutdown()

	incoming := c.opts.Transport.Incoming()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-incoming:
			if !ok {
				return ErrTransportClosed
			}
			c.dispatch(f)
		case fn := <-c.events:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (c *Client) Done() <-chan struct{} { return c.stopped }

// Join opens capture and then announces the room. A room whose capture
// cannot be opened is never joined.
func (c *Client) Join(ctx context.Context, room domain.RoomID, displayName string) error {
	var err error
	if derr := c.do(ctx, func() { err = c.join(room, displayName) }); derr != nil {
		return derr
	}
	return err
}

func (c *Client) Leave(ctx context.Context, room domain.RoomID) error {
	var err error
	if derr := c.do(ctx, func() { err = c.leave(room) }); derr != nil {
		return derr
	}
	return err
}

func (c *Client) SetMuted(ctx context.Context, room domain.RoomID, muted bool) error {
	var err error
	if derr := c.do(ctx, func() {
		s, ok := c.sessions[room]
		if !ok {
			err = fmt.Errorf("mute %s: %w", room, ErrNotJoined)
			return
		}
		err = s.setMuted(muted)
	}); derr != nil {
		return derr
	}
	return err
}

// Self is the id from the server's welcome, empty until it arrives.
func (c *Client) Self(ctx context.Context) (domain.ConnectionID, error) {
	var id domain.ConnectionID
	err := c.do(ctx, func() { id = c.self })
	return id, err
}

func (c *Client) Rooms(ctx context.Context) ([]domain.RoomID, error) {
	var out []domain.RoomID
	err := c.do(ctx, func() {
		for id := range c.sessions {
			out = append(out, id)
		}
		slices.Sort(out)
	})
	return out, err
}

func (c *Client) Roster(ctx context.Context, room domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	var err error
	if derr := c.do(ctx, func() {
		s, ok := c.sessions[room]
		if !ok {
			err = fmt.Errorf("roster %s: %w", room, ErrNotJoined)
			return
		}
		out = s.Roster()
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

func (c *Client) LinkStates(ctx context.Context, room domain.RoomID) (map[domain.ConnectionID]LinkState, error) {
	var out map[domain.ConnectionID]LinkState
	var err error
	if derr := c.do(ctx, func() {
		s, ok := c.sessions[room]
		if !ok {
			err = fmt.Errorf("links %s: %w", room, ErrNotJoined)
			return
		}
		out = s.LinkStates()
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

func (c *Client) join(room domain.RoomID, displayName string) error {
	if err := domain.ValidateRoomID(room); err != nil {
		return err
	}
	if err := domain.ValidateLocalDisplayName(displayName); err != nil {
		return err
	}
	if _, ok := c.sessions[room]; ok {
		return fmt.Errorf("join %s: %w", room, ErrAlreadyJoined)
	}
	src, err := c.opts.Capture.Open()
	if err != nil {
		return fmt.Errorf("join %s: %w: %v", room, ErrCaptureUnavailable, err)
	}

	s := newSession(sessionConfig{
		room:        room,
		displayName: displayName,
		transport:   c.opts.Transport,
		factory:     c.opts.Media,
		audio:       src,
		observer:    c.opts.Observer,
		self:        func() domain.ConnectionID { return c.self },
		offerDelay:  c.opts.OfferDelay,
		schedule:    c.schedule,
		logger:      c.logger,
	})
	if err := s.join(); err != nil {
		s.shutdown()
		return fmt.Errorf("join %s: %w", room, err)
	}
	c.sessions[room] = s
	c.logger.Info().Str("room", string(room)).Str("name", displayName).Msg("joined")
	return nil
}

func (c *Client) leave(room domain.RoomID) error {
	s, ok := c.sessions[room]
	if !ok {
		return fmt.Errorf("leave %s: %w", room, ErrNotJoined)
	}
	delete(c.sessions, room)
	c.logger.Info().Str("room", string(room)).Msg("left")
	return s.leave()
}

func (c *Client) shutdown() {
	for room, s := range c.sessions {
		s.shutdown()
		delete(c.sessions, room)
	}
}

// dispatch handles one server frame on the loop goroutine.
func (c *Client) dispatch(f core.Frame) {
	typ, err := protocol.PeekType(f)
	if err != nil {
		c.logger.Warn().Err(err).Msg("bad frame")
		return
	}
	switch typ {
	case protocol.TypeWelcome:
		if m, err := protocol.Decode[protocol.Welcome](f); err == nil {
			c.self = m.ConnectionID
			c.logger.Info().Str("conn", string(m.ConnectionID)).Msg("welcome")
		}
	case protocol.TypeRosterUpdate:
		if m, err := protocol.Decode[protocol.RosterUpdate](f); err == nil {
			if s := c.session(m.RoomID, typ); s != nil {
				s.onRoster(m.Participants)
			}
		}
	case protocol.TypeMemberJoined:
		if m, err := protocol.Decode[protocol.MemberEvent](f); err == nil {
			if s := c.session(m.RoomID, typ); s != nil {
				s.onMemberJoined(m.ConnectionID)
			}
		}
	case protocol.TypeMemberLeft:
		if m, err := protocol.Decode[protocol.MemberEvent](f); err == nil {
			if s := c.session(m.RoomID, typ); s != nil {
				s.onMemberLeft(m.ConnectionID)
			}
		}
	case protocol.TypeSignal:
		if m, err := protocol.Decode[protocol.SignalDelivery](f); err == nil {
			if s := c.session(m.RoomID, typ); s != nil {
				s.onSignal(m.SenderConnectionID, m.Payload)
			}
		}
	case protocol.TypeError:
		if m, err := protocol.Decode[protocol.Error](f); err == nil {
			c.logger.Warn().Str("reason", m.Error).Msg("server error")
		}
	case protocol.TypePong:
		c.logger.Debug().Msg("pong")
	default:
		c.logger.Debug().Str("type", string(typ)).Msg("unknown frame type")
	}
}

func (c *Client) session(room domain.RoomID, typ protocol.MessageType) *Session {
	s, ok := c.sessions[room]
	if !ok {
		c.logger.Debug().Str("room", string(room)).Str("type", string(typ)).Msg("frame for room not joined")
	}
	return s
}

// schedule runs fn on the loop after d, unless the loop has stopped.
func (c *Client) schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case c.events <- fn:
		case <-c.stopped:
		}
	})
}

func (c *Client) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	call := func() {
		fn()
		close(done)
	}
	select {
	case c.events <- call:
	case <-c.stopped:
		return ErrClientStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrClientStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
