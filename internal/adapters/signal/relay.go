package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

func (ctl *SignalWSController) handleRelay(id domain.ConnectionID, data []byte) {
	p, err := protocol.Decode[protocol.SignalRequest](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signal payload")
		ctl.Orch.Reply(id, protocol.NewError("bad_payload"))
		return
	}
	if p.TargetConnectionID == "" {
		ctl.Orch.Reply(id, protocol.NewError("missing_target"))
		return
	}
	ctl.Orch.Signal(id, p.RoomID, p.TargetConnectionID, p.Payload)
}
