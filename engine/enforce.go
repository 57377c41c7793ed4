package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"

	"golang.org/x/sync/errgroup"
)

// ErrRefused is returned when enforcement would target an occupant holding
// owner or admin affiliation. This is a defined policy outcome, not a
// transport failure.
var ErrRefused = errors.New("target holds owner or admin affiliation")

// guardRoom refuses enforcement in a room where any occupant matching the
// target is owner or admin. Affiliation is room-scoped, so the check has to
// be repeated per room.
func (e *Engine) guardRoom(room string, res Resolved) error {
	for _, occ := range e.matchingOccupants(room, res) {
		if occ.Affiliation.Privileged() {
			return fmt.Errorf("%w: %s is %s in %s", ErrRefused, occ.Nickname, occ.Affiliation, room)
		}
	}
	return nil
}

// setAffiliation performs one retried, permit-bounded affiliation change.
func (e *Engine) setAffiliation(ctx context.Context, room, jid string, aff muc.Affiliation) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	return e.retry.Do(ctx, func() error {
		return e.client.SetAffiliation(ctx, room, jid, aff)
	})
}

// setRole performs one retried, permit-bounded role change.
func (e *Engine) setRole(ctx context.Context, room, nickname string, role muc.Role) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	return e.retry.Do(ctx, func() error {
		return e.client.SetRole(ctx, room, nickname, role)
	})
}

// ApplyBan enforces one ban record in one room: outcast affiliation for the
// JID (when known), then a concurrent kick of every matching occupant.
// Sub-action failures are aggregated, never rolled back; affiliation and
// role mutations are idempotent so duplicate application is harmless.
func (e *Engine) ApplyBan(ctx context.Context, room string, rec banstore.BanRecord) error {
	res := Resolved{JID: rec.JID, Nickname: rec.Nickname}

	if err := e.guardRoom(room, res); err != nil {
		e.logger.Warn("ban refused", "room", room, "target", rec.Target(), "err", err)
		return err
	}

	var errs []error

	// durable ban first: outcast affiliation survives the user going
	// offline. Nickname-only records skip this; there is no identity to pin.
	if rec.JID != "" {
		if err := e.setAffiliation(ctx, room, rec.JID, muc.AffiliationOutcast); err != nil {
			enforcementErrors.WithLabelValues("affiliation").Inc()
			e.logger.Error("failed to set outcast affiliation", "room", room, "jid", rec.JID, "err", err)
			errs = append(errs, fmt.Errorf("outcast %s in %s: %w", rec.JID, room, err))
		} else {
			bansEnforced.Inc()
		}
	}

	// kick everyone currently present who matches. The guard above already
	// cleared this set of privileged occupants, but membership may have
	// changed since the snapshot, so re-check per occupant.
	eg := new(errgroup.Group)
	for _, occ := range e.matchingOccupants(room, res) {
		if occ.Affiliation.Privileged() {
			continue
		}
		occ := occ
		eg.Go(func() error {
			if err := e.setRole(ctx, room, occ.Nickname, muc.RoleNone); err != nil {
				enforcementErrors.WithLabelValues("kick").Inc()
				e.logger.Error("failed to kick occupant", "room", room, "nickname", occ.Nickname, "err", err)
				return fmt.Errorf("kick %s in %s: %w", occ.Nickname, room, err)
			}
			kicksIssued.Inc()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		e.announceBan(ctx, room, rec)
	}
	return errors.Join(errs...)
}

// ApplyUnban clears the outcast affiliation (when a JID is known) and
// restores the participant role of any matching occupant. The two
// sub-actions are independent; failure of one does not block the other.
func (e *Engine) ApplyUnban(ctx context.Context, room string, res Resolved) error {
	var errs []error

	if res.JID != "" {
		if err := e.setAffiliation(ctx, room, res.JID, muc.AffiliationNone); err != nil {
			enforcementErrors.WithLabelValues("affiliation").Inc()
			e.logger.Error("failed to clear outcast affiliation", "room", room, "jid", res.JID, "err", err)
			errs = append(errs, fmt.Errorf("clear outcast %s in %s: %w", res.JID, room, err))
		}
	}

	for _, occ := range e.matchingOccupants(room, res) {
		if err := e.setRole(ctx, room, occ.Nickname, muc.RoleParticipant); err != nil {
			enforcementErrors.WithLabelValues("restore").Inc()
			e.logger.Error("failed to restore role", "room", room, "nickname", occ.Nickname, "err", err)
			errs = append(errs, fmt.Errorf("restore %s in %s: %w", occ.Nickname, room, err))
		}
	}

	return errors.Join(errs...)
}

// enforceAll runs fn for every protected room concurrently. A failing room
// never aborts the others (the group carries no cancellation); the shared
// permit pool inside the transport helpers is what bounds total load.
func (e *Engine) enforceAll(ctx context.Context, fn func(ctx context.Context, room string) error) error {
	eg := new(errgroup.Group)
	for _, room := range e.ProtectedRooms() {
		room := room
		eg.Go(func() error {
			return fn(ctx, room)
		})
	}
	return eg.Wait()
}
