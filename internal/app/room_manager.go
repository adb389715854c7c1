package app

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
	"github.com/dkeye/teamvoice/internal/protocol"
)

// RosterSnapshot is an immutable copy of a room's participants in join order.
type RosterSnapshot struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

func (s RosterSnapshot) Contains(id domain.ConnectionID) bool {
	return slices.ContainsFunc(s.Participants, func(p domain.Participant) bool {
		return p.ConnectionID == id
	})
}

type RoomInfo struct {
	RoomID      domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}

// RoomRegistry is the authoritative room -> participants mapping.
// Every mutation and the broadcast that reports it happen under one lock, so
// clients never observe interleaved partial updates.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[domain.RoomID][]domain.Participant
	out   Deliverer
}

func NewRoomRegistry(out Deliverer) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[domain.RoomID][]domain.Participant),
		out:   out,
	}
}

// Join appends the participant and creates the room on first use. A second
// join of the same connection is rejected with domain.ErrAlreadyJoined and
// changes nothing.
func (r *RoomRegistry) Join(room domain.RoomID, id domain.ConnectionID, displayName string) (RosterSnapshot, error) {
	if err := domain.ValidateRoomID(room); err != nil {
		return RosterSnapshot{}, err
	}
	p, err := domain.NewParticipant(id, displayName)
	if err != nil {
		return RosterSnapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, existed := r.rooms[room]
	if indexOf(members, id) >= 0 {
		return snapshotOf(room, members), fmt.Errorf("join %s: %w", room, domain.ErrAlreadyJoined)
	}
	if !existed {
		log.Info().Str("module", "app.rooms").Str("room", string(room)).Msg("room created")
	}
	members = append(members, p)
	r.rooms[room] = members

	snap := snapshotOf(room, members)
	r.broadcastRoster(snap)
	r.broadcastEvent(members, id, protocol.NewMemberJoined(room, id))

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room)).
		Str("conn", string(id)).
		Int("members", len(members)).
		Msg("member joined")
	return snap, nil
}

// SetMuted updates one participant's flag. Unknown participants are ignored
// but the roster is still broadcast.
func (r *RoomRegistry) SetMuted(room domain.RoomID, id domain.ConnectionID, muted bool) RosterSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if i := indexOf(members, id); i >= 0 {
		members[i].Muted = muted
	} else {
		log.Debug().Str("module", "app.rooms").Str("room", string(room)).Str("conn", string(id)).Msg("mute for unknown participant")
	}

	snap := snapshotOf(room, members)
	r.broadcastRoster(snap)
	return snap
}

// Leave removes the participant. It reports whether anything changed.
func (r *RoomRegistry) Leave(room domain.RoomID, id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(room, id)
}

// DisconnectAll leaves every room containing id. Safe to call repeatedly and
// for connections that never joined anything.
func (r *RoomRegistry) DisconnectAll(id domain.ConnectionID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []domain.RoomID
	for room, members := range r.rooms {
		if indexOf(members, id) >= 0 {
			left = append(left, room)
		}
	}
	slices.Sort(left)
	for _, room := range left {
		r.leaveLocked(room, id)
	}
	return left
}

func (r *RoomRegistry) Snapshot(room domain.RoomID) (RosterSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		return RosterSnapshot{}, false
	}
	return snapshotOf(room, members), true
}

func (r *RoomRegistry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for room, members := range r.rooms {
		out = append(out, RoomInfo{RoomID: room, MemberCount: len(members)})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.RoomID, b.RoomID) })
	return out
}

func (r *RoomRegistry) leaveLocked(room domain.RoomID, id domain.ConnectionID) bool {
	members := r.rooms[room]
	i := indexOf(members, id)
	if i < 0 {
		return false
	}
	members = slices.Delete(members, i, i+1)
	if len(members) == 0 {
		delete(r.rooms, room)
		log.Info().Str("module", "app.rooms").Str("room", string(room)).Msg("room removed")
		return true
	}
	r.rooms[room] = members

	r.broadcastRoster(snapshotOf(room, members))
	r.broadcastEvent(members, "", protocol.NewMemberLeft(room, id))

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room)).
		Str("conn", string(id)).
		Int("members", len(members)).
		Msg("member left")
	return true
}

func (r *RoomRegistry) broadcastRoster(snap RosterSnapshot) {
	r.fanOut(snap.Participants, "", protocol.NewRosterUpdate(snap.RoomID, snap.Participants))
}

func (r *RoomRegistry) broadcastEvent(members []domain.Participant, skip domain.ConnectionID, ev protocol.MemberEvent) {
	r.fanOut(members, skip, ev)
}

// fanOut encodes v once and sends it to every member except skip.
func (r *RoomRegistry) fanOut(members []domain.Participant, skip domain.ConnectionID, v any) {
	if r.out == nil || len(members) == 0 {
		return
	}
	b, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Msg("broadcast encode")
		return
	}
	sent := 0
	for _, m := range members {
		if m.ConnectionID == skip {
			continue
		}
		if err := r.out.SendFrame(m.ConnectionID, core.Frame(b)); err != nil {
			log.Debug().Err(err).Str("module", "app.rooms").Str("conn", string(m.ConnectionID)).Msg("broadcast drop")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.rooms").Int("sent_to", sent).Msg("broadcast result")
}

func indexOf(members []domain.Participant, id domain.ConnectionID) int {
	return slices.IndexFunc(members, func(p domain.Participant) bool {
		return p.ConnectionID == id
	})
}

func snapshotOf(room domain.RoomID, members []domain.Participant) RosterSnapshot {
	return RosterSnapshot{RoomID: room, Participants: slices.Clone(members)}
}
