package signal

import (
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

func (ctl *SignalWSController) handlePing(id domain.ConnectionID) {
	ctl.Orch.Reply(id, protocol.Control{Type: protocol.TypePong})
}
