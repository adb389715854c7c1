package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/domain"
)

// Join adds the connection to room. A duplicate join is a benign no-op;
// validation failures are returned to the caller.
func (o *Orchestrator) Join(id domain.ConnectionID, room domain.RoomID, displayName string) error {
	snap, err := o.Rooms.Join(room, id, displayName)
	if errors.Is(err, domain.ErrAlreadyJoined) {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Msg("duplicate join ignored")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Int("members", len(snap.Participants)).Msg("added to room")
	return nil
}

func (o *Orchestrator) Leave(id domain.ConnectionID, room domain.RoomID) {
	if !o.Rooms.Leave(room, id) {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Msg("leave for room not joined")
	}
}

func (o *Orchestrator) SetMuted(id domain.ConnectionID, room domain.RoomID, muted bool) {
	o.Rooms.SetMuted(room, id, muted)
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Bool("muted", muted).Msg("mute changed")
}
