package engine

import (
	"context"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
)

// RunExpiryWorker unbans expired records on a fixed interval until the
// context is cancelled. Tick failures are logged and the loop carries on;
// a transient store error just means the records get picked up next tick.
func (e *Engine) RunExpiryWorker(ctx context.Context) error {
	log := e.logger.With("component", "expiry")
	log.Info("starting expiry worker", "interval", e.expiryInterval)

	ticker := time.NewTicker(e.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("expiry worker stopping")
			return nil
		case <-ticker.C:
			if err := e.ExpireOnce(ctx); err != nil {
				log.Error("expiry tick failed", "err", err)
			}
		}
	}
}

// ExpireOnce lifts every ban whose expiry has passed. Exposed separately so
// tests and operators can trigger a tick directly.
func (e *Engine) ExpireOnce(ctx context.Context) error {
	expired, err := e.store.ListExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, rec := range expired {
		e.logger.Info("ban expired", "target", rec.Target(), "issuer", rec.Issuer)
		bansExpired.Inc()
		if err := e.RequestUnban(ctx, rec.Target(), banstore.IssuerSystem); err != nil {
			return err
		}
	}
	return nil
}
