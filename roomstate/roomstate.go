// Package roomstate tracks live room membership. The occupant maps are
// derived state, rebuilt from join/leave notifications after every restart;
// nothing here is persisted. Absence of an occupant means "currently
// offline", which is distinct from "never seen" and equally meaningful.
package roomstate

import (
	"strings"

	"github.com/envs-net/muc-banbot/muc"

	"github.com/puzpuzpuz/xsync/v3"
)

// Occupant is a current member of one room. JID may be empty in
// semi-anonymous rooms where the transport hides real identities.
type Occupant struct {
	Nickname    string
	JID         string // bare form
	Affiliation muc.Affiliation
	Role        muc.Role
}

// Tracker owns the per-room occupant maps. Mutation happens only from
// membership notification handlers; every other component reads snapshots.
// A snapshot is a copy and stays valid while the underlying maps change.
type Tracker struct {
	rooms *xsync.MapOf[string, *xsync.MapOf[string, Occupant]]
}

func NewTracker() *Tracker {
	return &Tracker{
		rooms: xsync.NewMapOf[string, *xsync.MapOf[string, Occupant]](),
	}
}

func nickKey(nickname string) string {
	return strings.ToLower(nickname)
}

// Upsert records an occupant joining or changing state in a room.
func (t *Tracker) Upsert(room string, occ Occupant) {
	occ.JID = muc.Bare(occ.JID)
	m, _ := t.rooms.LoadOrCompute(room, func() *xsync.MapOf[string, Occupant] {
		return xsync.NewMapOf[string, Occupant]()
	})
	m.Store(nickKey(occ.Nickname), occ)
}

// Remove drops an occupant after a leave notification.
func (t *Tracker) Remove(room, nickname string) {
	if m, ok := t.rooms.Load(room); ok {
		m.Delete(nickKey(nickname))
	}
}

// DropRoom forgets all membership state for a room.
func (t *Tracker) DropRoom(room string) {
	t.rooms.Delete(room)
}

// Get returns the occupant with the given nickname (case-insensitive), if
// currently present in the room.
func (t *Tracker) Get(room, nickname string) (Occupant, bool) {
	m, ok := t.rooms.Load(room)
	if !ok {
		return Occupant{}, false
	}
	return m.Load(nickKey(nickname))
}

// Snapshot returns a copy of the room's current occupants. The copy is safe
// to iterate while joins and leaves continue concurrently.
func (t *Tracker) Snapshot(room string) []Occupant {
	m, ok := t.rooms.Load(room)
	if !ok {
		return nil
	}
	var out []Occupant
	m.Range(func(_ string, occ Occupant) bool {
		out = append(out, occ)
		return true
	})
	return out
}

// FindByNickname searches the given rooms for an occupant with the nickname
// (case-insensitive) and returns the first match. When the nickname is
// present in several rooms under different JIDs the winner depends on room
// order; callers treat this as a documented limitation.
func (t *Tracker) FindByNickname(rooms []string, nickname string) (Occupant, bool) {
	for _, room := range rooms {
		if occ, ok := t.Get(room, nickname); ok {
			return occ, true
		}
	}
	return Occupant{}, false
}

// FindByJID searches the given rooms for an occupant whose bare JID matches
// and returns the first match.
func (t *Tracker) FindByJID(rooms []string, jid string) (Occupant, bool) {
	for _, room := range rooms {
		for _, occ := range t.Snapshot(room) {
			if occ.JID != "" && muc.EqualJID(occ.JID, jid) {
				return occ, true
			}
		}
	}
	return Occupant{}, false
}
