package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/core/coretest"
	"github.com/dkeye/teamvoice/internal/protocol"
)

func TestConnections_BindUnbind(t *testing.T) {
	c := NewConnections(nil)
	rc := &coretest.RecordingConn{}
	c.Bind("a", rc, nil)
	assert.Equal(t, 1, c.Count())

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, rc, got)

	c.Unbind("a")
	c.Unbind("a")
	assert.Equal(t, 0, c.Count())
	assert.False(t, c.Cancel("a"))
}

func TestConnections_SendFrameUnknown(t *testing.T) {
	c := NewConnections(nil)
	err := c.SendFrame("nobody", core.Frame(`{}`))
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestConnections_BackpressureKicks(t *testing.T) {
	c := NewConnections(SimplePolicy{})
	rc := &coretest.RecordingConn{}
	rc.SetFull(true)
	kicked := false
	c.Bind("slow", rc, func() { kicked = true })

	err := c.Send("slow", protocol.Control{Type: protocol.TypePong})
	assert.ErrorIs(t, err, core.ErrBackpressure)
	assert.True(t, kicked)
}

func TestConnections_BackpressureDrops(t *testing.T) {
	c := NewConnections(DropPolicy{})
	rc := &coretest.RecordingConn{}
	rc.SetFull(true)
	kicked := false
	c.Bind("slow", rc, func() { kicked = true })

	err := c.SendFrame("slow", core.Frame(`{"type":"pong"}`))
	assert.ErrorIs(t, err, core.ErrBackpressure)
	assert.False(t, kicked)

	rc.SetFull(false)
	require.NoError(t, c.SendFrame("slow", core.Frame(`{"type":"pong"}`)))
	assert.Len(t, rc.Frames(), 1)
}

func TestSignalRelay_ForwardsPayloadVerbatim(t *testing.T) {
	c := NewConnections(nil)
	bob := &coretest.RecordingConn{}
	c.Bind("bob", bob, nil)
	relay := NewSignalRelay(c)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0 whatever","extra":[1,2,3]}`)
	require.True(t, relay.Relay("alice", "r", "bob", payload))

	frames := bob.Frames()
	require.Len(t, frames, 1)
	got, err := protocol.Decode[protocol.SignalDelivery](frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSignal, got.Type)
	assert.Equal(t, "alice", string(got.SenderConnectionID))
	assert.Equal(t, "r", string(got.RoomID))
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestSignalRelay_UnknownTargetIsDropped(t *testing.T) {
	relay := NewSignalRelay(NewConnections(nil))
	assert.False(t, relay.Relay("alice", "r", "gone", json.RawMessage(`{}`)))
}
