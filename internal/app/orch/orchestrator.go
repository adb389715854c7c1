package orch

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/app"
	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

// Orchestrator applies decoded client commands to the room registry and the
// signal relay. It is the only thing adapters talk to.
type Orchestrator struct {
	Conns *app.Connections
	Rooms *app.RoomRegistry
	Relay *app.SignalRelay
}

func New(policy app.Policy) *Orchestrator {
	conns := app.NewConnections(policy)
	return &Orchestrator{
		Conns: conns,
		Rooms: app.NewRoomRegistry(conns),
		Relay: app.NewSignalRelay(conns),
	}
}

// Connect registers a fresh connection and greets it with its id.
func (o *Orchestrator) Connect(conn core.SignalConnection, cancel context.CancelFunc) domain.ConnectionID {
	id := domain.ConnectionID(uuid.NewString())
	o.Conns.Bind(id, conn, cancel)
	if err := o.Conns.Send(id, protocol.Welcome{Type: protocol.TypeWelcome, ConnectionID: id}); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("welcome not delivered")
	}
	return id
}

// Disconnect runs once per connection teardown. Calling it again is harmless.
func (o *Orchestrator) Disconnect(id domain.ConnectionID) {
	rooms := o.Rooms.DisconnectAll(id)
	o.Conns.Unbind(id)
	log.Info().Str("module", "orch").Str("conn", string(id)).Int("rooms_left", len(rooms)).Msg("disconnected")
}

// Reply sends v back to one connection, best effort.
func (o *Orchestrator) Reply(id domain.ConnectionID, v any) {
	if err := o.Conns.Send(id, v); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("reply dropped")
	}
}
