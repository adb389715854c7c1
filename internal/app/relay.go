package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

// SignalRelay forwards opaque signaling payloads between connections.
// It never inspects the payload.
type SignalRelay struct {
	out Deliverer
}

func NewSignalRelay(out Deliverer) *SignalRelay {
	return &SignalRelay{out: out}
}

// Relay delivers payload to target tagged with the sender. Unreachable
// targets are dropped silently; the next roster broadcast tells the sender.
func (r *SignalRelay) Relay(from domain.ConnectionID, room domain.RoomID, target domain.ConnectionID, payload json.RawMessage) bool {
	b, err := protocol.Encode(protocol.SignalDelivery{
		Type:               protocol.TypeSignal,
		RoomID:             room,
		SenderConnectionID: from,
		Payload:            payload,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode signal")
		return false
	}
	if err := r.out.SendFrame(target, b); err != nil {
		log.Debug().Err(err).
			Str("module", "app.relay").
			Str("from", string(from)).
			Str("target", string(target)).
			Str("room", string(room)).
			Msg("signal dropped")
		return false
	}
	return true
}
