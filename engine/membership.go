package engine

import (
	"context"
	"time"

	"github.com/envs-net/muc-banbot/muc"
	"github.com/envs-net/muc-banbot/roomstate"
)

// HandleOccupantJoined feeds a join notification into the tracker and, for
// protected rooms, immediately evaluates every active ban record against the
// new occupant. Re-kicking an already-outcast user who rejoined is the
// common case here, and harmless.
func (e *Engine) HandleOccupantJoined(ctx context.Context, room, nickname, jid string, aff muc.Affiliation, role muc.Role) error {
	occ := roomstate.Occupant{
		Nickname:    nickname,
		JID:         muc.NormalizeJID(jid),
		Affiliation: aff,
		Role:        role,
	}
	e.tracker.Upsert(room, occ)
	e.logger.Debug("occupant online", "room", room, "nickname", nickname, "affiliation", aff, "role", role)

	if !e.IsProtected(room) || occ.Affiliation.Privileged() {
		return nil
	}

	recs, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, rec := range recs {
		if !rec.Active(now) || !rec.Matches(occ.JID, occ.Nickname) {
			continue
		}

		// a nickname-only record meeting its user for the first time learns
		// the JID, so enforcement works offline from now on
		if rec.JID == "" && occ.JID != "" {
			rec.JID = occ.JID
			if err := e.store.Upsert(ctx, rec); err != nil {
				e.logger.Error("failed to upgrade nickname ban with JID", "nickname", rec.Nickname, "err", err)
			} else {
				e.logger.Info("nickname ban upgraded with JID", "nickname", rec.Nickname, "jid", occ.JID)
			}
		}

		if err := e.ApplyBan(ctx, room, rec); err != nil {
			e.logger.Error("failed to enforce ban on join", "room", room, "target", rec.Target(), "err", err)
		}
	}
	return nil
}

// HandleOccupantLeft drops the occupant from the tracker. No history is
// kept; an absent occupant simply means "currently offline".
func (e *Engine) HandleOccupantLeft(room, nickname string) {
	e.tracker.Remove(room, nickname)
	e.logger.Debug("occupant offline", "room", room, "nickname", nickname)
}
