package orch

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/teamvoice/internal/app"
	"github.com/dkeye/teamvoice/internal/core/coretest"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

func connect(t *testing.T, o *Orchestrator) (domain.ConnectionID, *coretest.RecordingConn) {
	t.Helper()
	rc := &coretest.RecordingConn{}
	id := o.Connect(rc, func() {})
	rc.Reset()
	return id, rc
}

func TestConnect_SendsWelcome(t *testing.T) {
	o := New(app.SimplePolicy{})
	rc := &coretest.RecordingConn{}
	id := o.Connect(rc, nil)

	_, err := uuid.Parse(string(id))
	require.NoError(t, err)

	frames := rc.Frames()
	require.Len(t, frames, 1)
	w, err := protocol.Decode[protocol.Welcome](frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeWelcome, w.Type)
	assert.Equal(t, id, w.ConnectionID)

	other := o.Connect(&coretest.RecordingConn{}, nil)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, o.Conns.Count())
}

func TestJoin_DuplicateIsBenign(t *testing.T) {
	o := New(nil)
	id, rc := connect(t, o)

	require.NoError(t, o.Join(id, "r", "Alice"))
	rc.Reset()
	require.NoError(t, o.Join(id, "r", "Alice"))
	assert.Empty(t, rc.Frames())
}

func TestJoin_ValidationErrorsReturned(t *testing.T) {
	o := New(nil)
	id, _ := connect(t, o)

	assert.ErrorIs(t, o.Join(id, "r", ""), domain.ErrDisplayNameEmpty)
	assert.ErrorIs(t, o.Join(id, "", "Alice"), domain.ErrRoomIDEmpty)
}

func TestDisconnect_LeavesRoomsAndUnbinds(t *testing.T) {
	o := New(nil)
	a, _ := connect(t, o)
	b, bRec := connect(t, o)
	require.NoError(t, o.Join(a, "r1", "Alice"))
	require.NoError(t, o.Join(a, "r2", "Alice"))
	require.NoError(t, o.Join(b, "r1", "Bob"))
	bRec.Reset()

	o.Disconnect(a)
	assert.Equal(t, []protocol.MessageType{protocol.TypeRosterUpdate, protocol.TypeMemberLeft}, bRec.Types())
	assert.Equal(t, 1, o.Conns.Count())
	assert.Equal(t, []app.RoomInfo{{RoomID: "r1", MemberCount: 1}}, o.Rooms.Rooms())

	bRec.Reset()
	o.Disconnect(a)
	assert.Empty(t, bRec.Frames())
}

func TestSignal_DeliversToTargetOnly(t *testing.T) {
	o := New(nil)
	a, aRec := connect(t, o)
	b, bRec := connect(t, o)
	_, cRec := connect(t, o)

	o.Signal(a, "r", b, json.RawMessage(`{"type":"candidate","candidate":{"candidate":"c"}}`))

	assert.Empty(t, aRec.Frames())
	assert.Empty(t, cRec.Frames())
	require.Len(t, bRec.Frames(), 1)
	d, err := protocol.Decode[protocol.SignalDelivery](bRec.Frames()[0])
	require.NoError(t, err)
	assert.Equal(t, a, d.SenderConnectionID)
}

func TestBroadcast_KicksSlowMember(t *testing.T) {
	o := New(app.SimplePolicy{})
	a, _ := connect(t, o)

	slow := &coretest.RecordingConn{}
	kicked := make(chan struct{}, 1)
	b := o.Connect(slow, func() {
		select {
		case kicked <- struct{}{}:
		default:
		}
	})
	require.NoError(t, o.Join(b, "r", "Slow"))

	slow.SetFull(true)
	require.NoError(t, o.Join(a, "r", "Alice"))

	select {
	case <-kicked:
	default:
		t.Fatal("slow member not kicked")
	}
	// the kick only cancels; membership goes away on Disconnect
	snap, _ := o.Rooms.Snapshot("r")
	assert.True(t, snap.Contains(b))
	o.Disconnect(b)
	snap, _ = o.Rooms.Snapshot("r")
	assert.False(t, snap.Contains(b))
}

func TestSetMutedAndLeave(t *testing.T) {
	o := New(nil)
	a, aRec := connect(t, o)
	require.NoError(t, o.Join(a, "r", "Alice"))
	aRec.Reset()

	o.SetMuted(a, "r", true)
	assert.Equal(t, []protocol.MessageType{protocol.TypeRosterUpdate}, aRec.Types())
	snap, _ := o.Rooms.Snapshot("r")
	assert.True(t, snap.Participants[0].Muted)

	o.Leave(a, "r")
	o.Leave(a, "r")
	_, ok := o.Rooms.Snapshot("r")
	assert.False(t, ok)
}
