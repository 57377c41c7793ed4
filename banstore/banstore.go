// Package banstore holds the durable state of the bot: ban records and the
// set of protected rooms. Two implementations are provided, a gorm-backed
// Gormstore for production and a Memstore for tests.
package banstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Reserved issuer tags for records not created by a human moderator.
const (
	// IssuerSystem marks actions taken by the expiry worker.
	IssuerSystem = "system"
	// IssuerSync marks records adopted from room state during reconciliation.
	IssuerSync = "sync"
)

// ErrNotFound is returned by Find* when no matching record exists.
var ErrNotFound = errors.New("ban record not found")

// BanRecord is the durable statement that a user is banned. At least one of
// JID and Nickname is always set; that pair is the record's natural key.
// A nickname-only record covers users never seen in any room (the JID is
// learned, and the record upgraded, once they show up).
type BanRecord struct {
	JID       string     // bare JID, empty if unresolved
	Nickname  string     // display name, empty for JID-only bans
	ExpiresAt *time.Time // nil means permanent
	Issuer    string
	Comment   string
	CreatedAt time.Time
}

// Active reports whether the record is still in force at the given time.
func (r *BanRecord) Active(now time.Time) bool {
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// Matches reports whether the record covers the given occupant identity
// (bare-JID equality) or nickname (case-insensitive). Empty arguments never
// match.
func (r *BanRecord) Matches(jid, nickname string) bool {
	if r.JID != "" && jid != "" && strings.EqualFold(r.JID, jid) {
		return true
	}
	if r.Nickname != "" && nickname != "" && strings.EqualFold(r.Nickname, nickname) {
		return true
	}
	return false
}

// Target returns the best identifier for display: the JID when known,
// otherwise the nickname.
func (r *BanRecord) Target() string {
	if r.JID != "" {
		return r.JID
	}
	return r.Nickname
}

// Store is the persistence interface for ban records and protected rooms.
// Implementations must make each operation atomic with respect to concurrent
// callers. A failing store is fatal to the operation in progress; callers
// must propagate, never swallow, these errors.
type Store interface {
	// Upsert inserts or replaces a record. The existing record to replace is
	// located by JID when the new record has one, otherwise by nickname
	// (case-insensitive). Last write wins.
	Upsert(ctx context.Context, rec BanRecord) error

	// Delete removes any record matching the JID (bare, case-insensitive) or
	// the nickname (case-insensitive). Either argument may be empty. Returns
	// the deleted record, or ErrNotFound.
	Delete(ctx context.Context, jid, nickname string) (*BanRecord, error)

	FindByJID(ctx context.Context, jid string) (*BanRecord, error)
	FindByNickname(ctx context.Context, nickname string) (*BanRecord, error)

	// ListAll returns every record, ordered by creation time.
	ListAll(ctx context.Context) ([]BanRecord, error)

	// ListExpired returns records whose expiry is set and has passed.
	ListExpired(ctx context.Context, now time.Time) ([]BanRecord, error)

	// Search returns records whose JID, nickname or comment contains the
	// given substring, case-insensitively.
	Search(ctx context.Context, substr string) ([]BanRecord, error)

	// Protected room set. AddRoom is idempotent.
	AddRoom(ctx context.Context, room string) error
	RemoveRoom(ctx context.Context, room string) error
	ListRooms(ctx context.Context) ([]string, error)
}
