package engine

import (
	"strings"

	"github.com/envs-net/muc-banbot/muc"
	"github.com/envs-net/muc-banbot/roomstate"
)

// TargetKind distinguishes the two shapes a ban target can take.
type TargetKind int

const (
	// TargetJID is a stable account address ("user@example.org").
	TargetJID TargetKind = iota
	// TargetNickname is a room display name.
	TargetNickname
)

// Target is a classified ban target. Classification happens once, at the
// entry point, so the rest of the engine never re-inspects raw strings.
type Target struct {
	Kind  TargetKind
	Value string
}

// ClassifyTarget decides whether a free-form target string is a JID or a
// nickname. JIDs are normalized to lowercase bare form.
func ClassifyTarget(s string) Target {
	if muc.IsJID(s) {
		return Target{Kind: TargetJID, Value: muc.NormalizeJID(s)}
	}
	return Target{Kind: TargetNickname, Value: s}
}

// Resolved carries whatever identity information could be recovered for a
// target. At least one field is set; both are set when the target is
// currently present in some room.
type Resolved struct {
	JID      string
	Nickname string
}

// Resolve maps a target to a JID/nickname pair using current membership.
// Resolution is best effort: a nickname nobody currently uses still yields
// a nickname-only result, so offline or never-seen users can be banned
// proactively. When a nickname is in use in several rooms under different
// JIDs the first room searched wins; which identity that is carries no
// meaning, and this is a documented limitation.
func (e *Engine) Resolve(target string) Resolved {
	t := ClassifyTarget(target)
	rooms := e.ProtectedRooms()

	switch t.Kind {
	case TargetJID:
		res := Resolved{JID: t.Value}
		if occ, ok := e.tracker.FindByJID(rooms, t.Value); ok {
			res.Nickname = occ.Nickname
		}
		return res
	default:
		res := Resolved{Nickname: t.Value}
		if occ, ok := e.tracker.FindByNickname(rooms, t.Value); ok {
			res.JID = occ.JID
			res.Nickname = occ.Nickname
		}
		return res
	}
}

// matchingOccupants returns the current occupants of a room covered by the
// resolved target, by bare-JID or case-insensitive nickname match.
func (e *Engine) matchingOccupants(room string, res Resolved) []roomstate.Occupant {
	var out []roomstate.Occupant
	for _, occ := range e.tracker.Snapshot(room) {
		if res.JID != "" && occ.JID != "" && muc.EqualJID(res.JID, occ.JID) {
			out = append(out, occ)
			continue
		}
		if res.Nickname != "" && occ.Nickname != "" && strings.EqualFold(res.Nickname, occ.Nickname) {
			out = append(out, occ)
		}
	}
	return out
}
