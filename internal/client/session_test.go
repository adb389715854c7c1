package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/teamvoice/internal/core/coretest"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

type sessionFixture struct {
	s         *Session
	tr        *coretest.RecordingTransport
	factory   *fakeFactory
	src       *fakeSource
	journal   *journal
	scheduled []func()
}

func newSessionFixture(t *testing.T, offerDelay time.Duration) *sessionFixture {
	t.Helper()
	j := &journal{}
	f := &sessionFixture{
		tr:      coretest.NewRecordingTransport(),
		factory: newFakeFactory("me", j),
		src:     &fakeSource{enabled: true, journal: j},
		journal: j,
	}
	f.s = newSession(sessionConfig{
		room:        "r",
		displayName: "Me",
		transport:   f.tr,
		factory:     f.factory,
		audio:       f.src,
		self:        func() domain.ConnectionID { return "me" },
		offerDelay:  offerDelay,
		schedule:    func(_ time.Duration, fn func()) { f.scheduled = append(f.scheduled, fn) },
		logger:      zerolog.Nop(),
	})
	return f
}

type sentSignal struct {
	to      domain.ConnectionID
	room    domain.RoomID
	payload SignalPayload
}

func (f *sessionFixture) signals(t *testing.T) []sentSignal {
	t.Helper()
	var out []sentSignal
	for _, fr := range f.tr.Sent() {
		typ, err := protocol.PeekType(fr)
		require.NoError(t, err)
		if typ != protocol.TypeSignal {
			continue
		}
		req, err := protocol.Decode[protocol.SignalRequest](fr)
		require.NoError(t, err)
		p, err := parseSignal(req.Payload)
		require.NoError(t, err)
		out = append(out, sentSignal{to: req.TargetConnectionID, room: req.RoomID, payload: p})
	}
	return out
}

func (f *sessionFixture) countSignals(t *testing.T, to domain.ConnectionID, typ string) int {
	n := 0
	for _, s := range f.signals(t) {
		if s.to == to && s.payload.Type == typ {
			n++
		}
	}
	return n
}

func rawSignal(t *testing.T, p SignalPayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}

func participants(ids ...domain.ConnectionID) []domain.Participant {
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Participant{ConnectionID: id, DisplayName: string(id)})
	}
	return out
}

func TestSession_MemberJoinedMakesUsInitiator(t *testing.T) {
	f := newSessionFixture(t, 0)

	f.s.onMemberJoined("bob")

	l := f.s.links["bob"]
	require.NotNil(t, l)
	assert.Equal(t, RoleInitiator, l.Role())
	assert.Equal(t, StateOfferPending, l.State())
	assert.Equal(t, 1, f.countSignals(t, "bob", signalOffer))
	for _, s := range f.signals(t) {
		assert.Equal(t, domain.RoomID("r"), s.room)
	}
	assert.Equal(t, 1, f.factory.last("bob").stats().attached)
}

func TestSession_MemberJoinedIgnoresSelfAndDuplicates(t *testing.T) {
	f := newSessionFixture(t, 0)

	f.s.onMemberJoined("me")
	f.s.onMemberJoined("bob")
	f.s.onMemberJoined("bob")

	assert.Zero(t, f.factory.count("me"))
	assert.Equal(t, 1, f.factory.count("bob"))
	assert.Equal(t, 1, f.countSignals(t, "bob", signalOffer))
}

func TestSession_SignalFromUnknownSenderCreatesResponder(t *testing.T) {
	f := newSessionFixture(t, 0)

	f.s.onSignal("alice", rawSignal(t, SignalPayload{Type: signalOffer, SDP: "offer"}))

	l := f.s.links["alice"]
	require.NotNil(t, l)
	assert.Equal(t, RoleResponder, l.Role())
	assert.Equal(t, StateEstablished, l.State())
	assert.Equal(t, 1, f.countSignals(t, "alice", signalAnswer))
	assert.Zero(t, f.countSignals(t, "alice", signalOffer))
}

func TestSession_CandidatesBeforeOfferAcrossSession(t *testing.T) {
	f := newSessionFixture(t, 0)

	f.s.onSignal("alice", rawSignal(t, candidate("c1")))
	assert.Equal(t, StateIdle, f.s.links["alice"].State())

	f.s.onSignal("alice", rawSignal(t, SignalPayload{Type: signalOffer, SDP: "offer"}))
	assert.Equal(t, StateEstablished, f.s.links["alice"].State())
	assert.Equal(t, []string{"c1"}, f.factory.last("alice").stats().candidates)
}

func TestSession_RosterClosesLinksButNeverCreates(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onMemberJoined("bob")
	f.s.onMemberJoined("carol")

	f.s.onRoster(participants("me", "carol", "dave"))

	assert.NotContains(t, f.s.links, domain.ConnectionID("bob"))
	assert.Equal(t, 1, f.factory.last("bob").stats().closed)
	assert.Contains(t, f.s.links, domain.ConnectionID("carol"))
	assert.NotContains(t, f.s.links, domain.ConnectionID("dave"))
	assert.Zero(t, f.factory.count("dave"))
	assert.Len(t, f.s.Roster(), 3)
}

func TestSession_MemberLeftClosesLink(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onMemberJoined("bob")

	f.s.onMemberLeft("bob")
	f.s.onMemberLeft("bob")

	assert.Empty(t, f.s.links)
	assert.Equal(t, 1, f.factory.last("bob").stats().closed)
}

func TestSession_ProtocolErrorsCloseTheLink(t *testing.T) {
	f := newSessionFixture(t, 0)

	// answer with no offer outstanding
	f.s.onSignal("alice", rawSignal(t, SignalPayload{Type: signalAnswer, SDP: "a"}))
	assert.Empty(t, f.s.links)
	assert.Equal(t, 1, f.factory.last("alice").stats().closed)

	// malformed payload for an existing link
	f.s.onMemberJoined("bob")
	f.s.onSignal("bob", json.RawMessage(`{"type":"offer"}`))
	assert.NotContains(t, f.s.links, domain.ConnectionID("bob"))

	// malformed payload from a stranger creates nothing
	f.s.onSignal("stranger", json.RawMessage(`{"nope":true}`))
	assert.Zero(t, f.factory.count("stranger"))
}

func TestSession_SetMutedGatesSourceOnly(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onMemberJoined("bob")
	before := f.s.LinkStates()

	require.NoError(t, f.s.setMuted(true))
	assert.False(t, f.src.isEnabled())
	assert.True(t, f.s.Muted())
	assert.Equal(t, before, f.s.LinkStates())
	assert.Equal(t, 1, f.factory.count("bob"))
	assert.Zero(t, f.factory.last("bob").stats().closed)

	sent := f.tr.Sent()
	m, err := protocol.Decode[protocol.MuteChanged](sent[len(sent)-1])
	require.NoError(t, err)
	assert.Equal(t, protocol.MuteChanged{Type: protocol.TypeMuteChanged, RoomID: "r", Muted: true}, m)

	require.NoError(t, f.s.setMuted(false))
	assert.True(t, f.src.isEnabled())
}

func TestSession_LeaveClosesLinksBeforeCapture(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onMemberJoined("bob")
	f.s.onSignal("alice", rawSignal(t, SignalPayload{Type: signalOffer, SDP: "o"}))

	require.NoError(t, f.s.leave())

	events := f.journal.list()
	require.Len(t, events, 3)
	assert.ElementsMatch(t, []string{"link bob closed", "link alice closed"}, events[:2])
	assert.Equal(t, "capture closed", events[2])

	types := f.tr.SentTypes()
	assert.Equal(t, protocol.TypeLeave, types[len(types)-1])

	// a closed session ignores everything
	f.s.onMemberJoined("carol")
	assert.Zero(t, f.factory.count("carol"))
	require.NoError(t, f.s.leave())
	assert.Equal(t, 1, f.src.closed)
}

func TestSession_OfferDelayRunsThroughScheduler(t *testing.T) {
	f := newSessionFixture(t, 50*time.Millisecond)

	f.s.onMemberJoined("bob")
	assert.Equal(t, StateIdle, f.s.links["bob"].State())
	assert.Zero(t, f.countSignals(t, "bob", signalOffer))
	require.Len(t, f.scheduled, 1)

	f.scheduled[0]()
	assert.Equal(t, StateOfferPending, f.s.links["bob"].State())
	assert.Equal(t, 1, f.countSignals(t, "bob", signalOffer))
}

func TestSession_DelayedOfferSkippedAfterLeave(t *testing.T) {
	f := newSessionFixture(t, 50*time.Millisecond)
	f.s.onMemberJoined("bob")
	f.s.onMemberLeft("bob")

	require.Len(t, f.scheduled, 1)
	f.scheduled[0]()
	assert.Zero(t, f.countSignals(t, "bob", signalOffer))
	assert.Zero(t, f.factory.last("bob").stats().offers)
}

func TestSession_EndOfCandidatesKeepsLinkEstablished(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onRoster(participants("me", "b"))
	f.s.onSignal("b", rawSignal(t, SignalPayload{Type: signalOffer, SDP: "offer"}))
	require.Equal(t, map[domain.ConnectionID]LinkState{"b": StateEstablished}, f.s.LinkStates())

	f.s.onSignal("b", json.RawMessage(`{"type":"candidate","candidate":{"candidate":"","sdpMid":"0","sdpMLineIndex":0}}`))

	assert.Equal(t, map[domain.ConnectionID]LinkState{"b": StateEstablished}, f.s.LinkStates())
	assert.Equal(t, []string{""}, f.factory.last("b").stats().candidates)
	assert.Zero(t, f.factory.last("b").stats().closed)
}

func TestSession_LateSignalFromDepartedMemberIsDropped(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onRoster(participants("me", "b"))
	f.s.onMemberLeft("b")

	f.s.onSignal("b", rawSignal(t, candidate("late")))
	assert.Empty(t, f.s.LinkStates())

	f.s.onRoster(participants("me"))
	f.s.onSignal("b", rawSignal(t, SignalPayload{Type: signalOffer, SDP: "offer"}))
	assert.Empty(t, f.s.LinkStates())
	assert.Zero(t, f.factory.count("b"))
}

func TestSession_SignalFromRosterMemberCreatesResponder(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.s.onRoster(participants("me", "b"))

	f.s.onSignal("b", rawSignal(t, candidate("c1")))
	assert.Equal(t, map[domain.ConnectionID]LinkState{"b": StateIdle}, f.s.LinkStates())
}
