package orch

import (
	"encoding/json"

	"github.com/dkeye/teamvoice/internal/domain"
)

// Signal forwards an opaque negotiation payload. Delivery is best effort.
func (o *Orchestrator) Signal(from domain.ConnectionID, room domain.RoomID, target domain.ConnectionID, payload json.RawMessage) {
	o.Relay.Relay(from, room, target, payload)
}
