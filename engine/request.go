package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"
)

// Scope selects how much identity detail query results may carry.
type Scope int

const (
	// AdminView returns records as stored, full JIDs included.
	AdminView Scope = iota
	// RoomView anonymizes JIDs for output readable by regular occupants.
	RoomView
)

func (s Scope) redact(rec banstore.BanRecord) banstore.BanRecord {
	if s == RoomView && rec.JID != "" {
		rec.JID = muc.AnonymizeJID(rec.JID)
	}
	return rec
}

// RequestBan is the top-level ban entry point. It resolves the target,
// checks the owner/admin guard against every protected room, persists the
// record, and then enforces it everywhere. The store write is the success
// criterion: room-level enforcement failures are reported to the admin room
// but do not fail the request, since reconciliation retries them later.
//
// Until == nil means permanent. Re-requesting the same target replaces the
// existing record (last write wins).
func (e *Engine) RequestBan(ctx context.Context, target string, until *time.Time, issuer, comment string) error {
	res := e.Resolve(target)

	// a ban must not partially succeed by being stored but refused in every
	// room, so the guard runs across all rooms before anything is written
	for _, room := range e.ProtectedRooms() {
		if err := e.guardRoom(room, res); err != nil {
			return err
		}
	}

	rec := banstore.BanRecord{
		JID:       res.JID,
		Nickname:  res.Nickname,
		ExpiresAt: until,
		Issuer:    issuer,
		Comment:   comment,
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persisting ban record: %w", err)
	}
	bansRequested.Inc()
	e.logger.Info("ban recorded", "target", rec.Target(), "issuer", issuer, "permanent", until == nil)

	if err := e.enforceAll(ctx, func(ctx context.Context, room string) error {
		return e.ApplyBan(ctx, room, rec)
	}); err != nil {
		e.notifyAdmin(ctx, "", fmt.Sprintf("⚠️ Ban of %s stored but not fully enforced: %v", rec.Target(), err))
	}
	return nil
}

// RequestUnban deletes the stored record for a target and clears enforcement
// in every protected room. Rooms are cleared even when no record was found,
// so the command doubles as a manual override for leftover room-level
// outcast entries with no matching record; in that case the cleanup is
// silent, announcements go out only when a record was actually lifted.
func (e *Engine) RequestUnban(ctx context.Context, target, issuer string) error {
	rec, err := e.lookupRecord(ctx, target)
	if err != nil && !errors.Is(err, banstore.ErrNotFound) {
		return fmt.Errorf("looking up ban record: %w", err)
	}

	res := Resolved{}
	if rec != nil {
		res.JID = rec.JID
		res.Nickname = rec.Nickname
		if _, err := e.store.Delete(ctx, rec.JID, rec.Nickname); err != nil && !errors.Is(err, banstore.ErrNotFound) {
			return fmt.Errorf("deleting ban record: %w", err)
		}
		bansLifted.Inc()
		e.logger.Info("ban record deleted", "target", rec.Target(), "issuer", issuer)
	} else {
		t := ClassifyTarget(target)
		if t.Kind == TargetJID {
			res.JID = t.Value
		} else {
			res.Nickname = t.Value
		}
		e.logger.Info("no ban record for target, clearing rooms anyway", "target", target)
	}

	display := res.JID
	if display == "" {
		display = res.Nickname
	}

	if err := e.enforceAll(ctx, func(ctx context.Context, room string) error {
		if err := e.ApplyUnban(ctx, room, res); err != nil {
			return err
		}
		if rec != nil {
			e.announceUnban(ctx, room, display, issuer)
		}
		return nil
	}); err != nil {
		e.notifyAdmin(ctx, "", fmt.Sprintf("⚠️ Unban of %s not fully applied: %v", display, err))
	}
	return nil
}

// lookupRecord resolves a target string to its stored record: JID match
// first, then nickname, then a last-resort comparison of the target against
// the localpart of each stored JID.
func (e *Engine) lookupRecord(ctx context.Context, target string) (*banstore.BanRecord, error) {
	t := ClassifyTarget(target)

	if t.Kind == TargetJID {
		rec, err := e.store.FindByJID(ctx, t.Value)
		if err == nil || !errors.Is(err, banstore.ErrNotFound) {
			return rec, err
		}
	}

	rec, err := e.store.FindByNickname(ctx, target)
	if err == nil || !errors.Is(err, banstore.ErrNotFound) {
		return rec, err
	}

	all, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].JID != "" && strings.EqualFold(muc.Localpart(all[i].JID), target) {
			return &all[i], nil
		}
	}
	return nil, banstore.ErrNotFound
}

// QueryBanList returns every ban record, ordered by creation time.
func (e *Engine) QueryBanList(ctx context.Context, scope Scope) ([]banstore.BanRecord, error) {
	all, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]banstore.BanRecord, 0, len(all))
	for _, rec := range all {
		out = append(out, scope.redact(rec))
	}
	return out, nil
}

// QueryWhy returns the record covering a target, or banstore.ErrNotFound.
func (e *Engine) QueryWhy(ctx context.Context, target string, scope Scope) (*banstore.BanRecord, error) {
	rec, err := e.lookupRecord(ctx, target)
	if err != nil {
		return nil, err
	}
	redacted := scope.redact(*rec)
	return &redacted, nil
}

// QuerySearch returns records whose JID, nickname or comment contains the
// substring.
func (e *Engine) QuerySearch(ctx context.Context, substr string) ([]banstore.BanRecord, error) {
	return e.store.Search(ctx, substr)
}
