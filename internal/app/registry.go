package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Deliverer pushes an encoded frame to one live connection without blocking.
type Deliverer interface {
	SendFrame(to domain.ConnectionID, f core.Frame) error
}

type connEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Connections is the directory of live signaling connections.
type Connections struct {
	mu     sync.RWMutex
	conns  map[domain.ConnectionID]*connEntry
	policy Policy
}

func NewConnections(policy Policy) *Connections {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Connections{
		conns:  make(map[domain.ConnectionID]*connEntry),
		policy: policy,
	}
}

func (c *Connections) Bind(id domain.ConnectionID, conn core.SignalConnection, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id] = &connEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.conns").Str("conn", string(id)).Msg("bound connection")
}

func (c *Connections) Get(id domain.ConnectionID) (core.SignalConnection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (c *Connections) Unbind(id domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id)
	log.Info().Str("module", "app.conns").Str("conn", string(id)).Msg("unbind connection")
}

func (c *Connections) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Cancel tears down the connection's context. The adapter notices and runs
// the normal disconnect path.
func (c *Connections) Cancel(id domain.ConnectionID) bool {
	c.mu.RLock()
	e, ok := c.conns[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.conns").Str("conn", string(id)).Msg("canceled connection")
	return true
}

func (c *Connections) SendFrame(to domain.ConnectionID, f core.Frame) error {
	conn, ok := c.Get(to)
	if !ok {
		return fmt.Errorf("send to %s: %w", to, ErrUnknownConnection)
	}
	err := conn.TrySend(f)
	if errors.Is(err, core.ErrBackpressure) {
		switch c.policy.OnBackPressure(to) {
		case KickMember:
			log.Warn().Str("module", "app.conns").Str("conn", string(to)).Msg("send buffer full, kicking")
			c.Cancel(to)
		case DropFrame, NoAction:
			log.Warn().Str("module", "app.conns").Str("conn", string(to)).Msg("send buffer full, frame dropped")
		}
	}
	return err
}

// Send encodes v and delivers it to one connection.
func (c *Connections) Send(to domain.ConnectionID, v any) error {
	b, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return c.SendFrame(to, b)
}
