package engine

import (
	"context"
	"fmt"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"
)

// announceBan reports an applied ban. The admin room gets the full JID; the
// affected room gets an anonymized copy, and only when room announcements
// are enabled in config.
func (e *Engine) announceBan(ctx context.Context, room string, rec banstore.BanRecord) {
	msg := fmt.Sprintf("✅ Banned %s by %s", rec.Target(), rec.Issuer)
	if rec.Comment != "" {
		msg += fmt.Sprintf(" (%s)", rec.Comment)
	}
	e.notifyAdmin(ctx, room, msg)

	if e.announceToRooms && room != e.adminRoom {
		anon := fmt.Sprintf("✅ Banned %s", muc.AnonymizeJID(rec.Target()))
		if err := e.client.SendMessage(ctx, room, anon); err != nil {
			e.logger.Error("failed to announce ban to room", "room", room, "err", err)
		}
	}
}

// announceUnban reports a cleared ban, same gating as announceBan.
func (e *Engine) announceUnban(ctx context.Context, room, target, issuer string) {
	msg := fmt.Sprintf("♻️ Unbanned %s", target)
	if issuer != "" {
		msg += fmt.Sprintf(" by %s", issuer)
	}
	e.notifyAdmin(ctx, room, msg)

	if e.announceToRooms && room != e.adminRoom {
		anon := fmt.Sprintf("♻️ Unbanned %s", muc.AnonymizeJID(target))
		if err := e.client.SendMessage(ctx, room, anon); err != nil {
			e.logger.Error("failed to announce unban to room", "room", room, "err", err)
		}
	}
}

// notifyAdmin sends an operator-facing line to the admin room, prefixed with
// the room the action happened in.
func (e *Engine) notifyAdmin(ctx context.Context, room, msg string) {
	if e.adminRoom == "" {
		return
	}
	if room != "" && room != e.adminRoom {
		msg = fmt.Sprintf("[%s] %s", room, msg)
	}
	if err := e.client.SendMessage(ctx, e.adminRoom, msg); err != nil {
		e.logger.Error("failed to notify admin room", "err", err)
	}
}
