package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"

	"golang.org/x/sync/errgroup"
)

// Reconcile compares the ban store against every protected room's observed
// outcast list and heals divergence in both directions: outcasts with no
// record are adopted into the store as permanent bans tagged "sync", and
// active records missing from a room are re-applied there. Reconciliation
// is strictly additive; it never deletes a record. Rooms are swept
// concurrently and a failure in one room does not abort the others.
func (e *Engine) Reconcile(ctx context.Context) error {
	reconcileRuns.Inc()
	start := time.Now()

	recs, err := e.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing ban records: %w", err)
	}

	eg := new(errgroup.Group)
	for _, room := range e.ProtectedRooms() {
		room := room
		eg.Go(func() error {
			if err := e.reconcileRoom(ctx, room, recs); err != nil {
				e.logger.Error("room reconciliation failed", "room", room, "err", err)
				return fmt.Errorf("reconciling %s: %w", room, err)
			}
			return nil
		})
	}
	err = eg.Wait()
	e.logger.Info("reconciliation sweep finished", "rooms", len(e.ProtectedRooms()), "took", time.Since(start))
	return err
}

func (e *Engine) reconcileRoom(ctx context.Context, room string, recs []banstore.BanRecord) error {
	if err := e.rosterLimiter.Wait(ctx); err != nil {
		return err
	}
	outcasts, err := e.client.ListByAffiliation(ctx, room, muc.AffiliationOutcast)
	if err != nil {
		return fmt.Errorf("fetching outcast list: %w", err)
	}

	// keys are normalized so a record stored with different casing than the
	// room reports still counts as covered
	outcastSet := make(map[string]bool, len(outcasts))
	for _, jid := range outcasts {
		outcastSet[muc.NormalizeJID(jid)] = true
	}

	// direction 1: adopt enforcement that happened out-of-band. An outcast
	// with no covering record becomes a permanent ban tagged "sync".
	for _, jid := range outcasts {
		jid = muc.NormalizeJID(jid)
		covered := false
		for i := range recs {
			if recs[i].Matches(jid, "") {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		rec := banstore.BanRecord{
			JID:     jid,
			Issuer:  banstore.IssuerSync,
			Comment: fmt.Sprintf("recovered from %s", room),
		}
		if err := e.store.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("adopting orphan outcast %s: %w", jid, err)
		}
		orphansAdopted.Inc()
		e.logger.Info("adopted orphan outcast into ban store", "room", room, "jid", jid)
	}

	// direction 2: re-apply active records the room does not reflect.
	// Nickname-only records have no affiliation footprint to check; they are
	// enforced by the join path instead.
	now := time.Now()
	for _, rec := range recs {
		if rec.JID == "" || !rec.Active(now) || outcastSet[muc.NormalizeJID(rec.JID)] {
			continue
		}
		bansReapplied.Inc()
		e.logger.Info("re-applying ban missing from room", "room", room, "jid", rec.JID)
		if err := e.ApplyBan(ctx, room, rec); err != nil {
			return fmt.Errorf("re-applying ban for %s: %w", rec.JID, err)
		}
	}
	return nil
}
