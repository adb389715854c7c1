package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

func (ctl *SignalWSController) handleJoin(id domain.ConnectionID, data []byte) {
	p, err := protocol.Decode[protocol.Join](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.Orch.Reply(id, protocol.NewError("bad_payload"))
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("join rate limited")
		ctl.Orch.Reply(id, protocol.NewError("rate_limited"))
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(p.RoomID)).Msg("join")
	if err := ctl.Orch.Join(id, p.RoomID, p.DisplayName); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("join rejected")
		ctl.Orch.Reply(id, protocol.NewError(err.Error()))
	}
}

// handleLeave leaves one room; the connection itself stays open.
func (ctl *SignalWSController) handleLeave(id domain.ConnectionID, data []byte) {
	p, err := protocol.Decode[protocol.Leave](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad leave payload")
		ctl.Orch.Reply(id, protocol.NewError("bad_payload"))
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(p.RoomID)).Msg("leave")
	ctl.Orch.Leave(id, p.RoomID)
}

func (ctl *SignalWSController) handleMute(id domain.ConnectionID, data []byte) {
	p, err := protocol.Decode[protocol.MuteChanged](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.Orch.Reply(id, protocol.NewError("bad_payload"))
		return
	}
	ctl.Orch.SetMuted(id, p.RoomID, p.Muted)
}
