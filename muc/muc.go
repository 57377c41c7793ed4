// Package muc defines the transport-facing types for multi-user chat
// moderation: affiliations, roles, JID handling, and the Client interface
// the engine drives. The actual XMPP session implementation lives outside
// this module; tests use the MockClient.
package muc

import (
	"context"
)

// Affiliation is a long-term, room-scoped authorization level. It persists
// across the user's absence from the room.
type Affiliation string

const (
	AffiliationOwner   Affiliation = "owner"
	AffiliationAdmin   Affiliation = "admin"
	AffiliationMember  Affiliation = "member"
	AffiliationOutcast Affiliation = "outcast"
	AffiliationNone    Affiliation = "none"
)

// Privileged indicates the affiliation is exempt from enforcement actions.
func (a Affiliation) Privileged() bool {
	return a == AffiliationOwner || a == AffiliationAdmin
}

// Role is a session-scoped privilege level. Kicking an occupant is
// implemented as downgrading their role to "none".
type Role string

const (
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleVisitor     Role = "visitor"
	RoleNone        Role = "none"
)

// Client is the outbound half of the chat transport. Implementations are
// expected to classify failures as ErrTimeout (transient, retryable) or
// ErrRejected (permission/validation, terminal); see errors.go.
type Client interface {
	JoinRoom(ctx context.Context, room string) error
	LeaveRoom(ctx context.Context, room string) error

	// SetAffiliation changes the long-term affiliation of a bare JID in a
	// room. Setting AffiliationOutcast is the durable ban primitive.
	SetAffiliation(ctx context.Context, room, jid string, aff Affiliation) error

	// SetRole changes the session role of an occupant, addressed by nickname.
	SetRole(ctx context.Context, room, nickname string, role Role) error

	// ListByAffiliation returns the bare JIDs holding the given affiliation
	// in a room (e.g. the room's outcast list).
	ListByAffiliation(ctx context.Context, room string, aff Affiliation) ([]string, error)

	// SendMessage sends a groupchat message to a room.
	SendMessage(ctx context.Context, room, body string) error
}
