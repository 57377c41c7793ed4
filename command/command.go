// Package command implements the admin-room command surface of the bot:
// parsing of the "!" commands, authorization against the admin room's
// occupants, and human-facing reply formatting.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/engine"
	"github.com/envs-net/muc-banbot/muc"
	"github.com/envs-net/muc-banbot/roomstate"
)

const helpText = `!help
!ban <jid|nick> [comment]
!tempban <jid|nick> <10m|2h|1d> [comment]
!unban <jid|nick>
!banlist
!why <jid|nick>
!search <text>
!room add/remove/list
!sync
!status
!whoami`

// Handler routes groupchat messages to engine operations. Mutating commands
// are only accepted from the admin room, from occupants holding owner or
// admin affiliation there.
type Handler struct {
	Engine    *engine.Engine
	Tracker   *roomstate.Tracker
	Client    muc.Client
	AdminRoom string
	BotNick   string
	Logger    *slog.Logger
}

// HandleMessage processes one groupchat message. Messages from the bot
// itself, non-commands, and commands outside the admin room are ignored
// (except !help, which answers anywhere).
func (h *Handler) HandleMessage(ctx context.Context, room, nickname, body string) {
	if nickname == h.BotNick {
		return
	}
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "!") {
		return
	}
	h.Logger.Info("command received", "room", room, "nickname", nickname, "body", body)

	if body == "!help" {
		h.reply(ctx, room, helpText)
		return
	}
	if room != h.AdminRoom {
		return
	}
	if !h.authorized(nickname) {
		h.reply(ctx, room, "❌ You are not authorized.")
		return
	}

	parts := strings.Fields(body)
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "!ban":
		h.cmdBan(ctx, room, nickname, args, nil)
	case "!tempban":
		h.cmdTempban(ctx, room, nickname, args)
	case "!unban":
		if len(args) < 1 {
			h.reply(ctx, room, "usage: !unban <jid|nick>")
			return
		}
		if err := h.Engine.RequestUnban(ctx, args[0], nickname); err != nil {
			h.reply(ctx, room, fmt.Sprintf("❌ Unban failed: %v", err))
		}
	case "!banlist":
		h.cmdBanlist(ctx, room)
	case "!why":
		h.cmdWhy(ctx, room, args)
	case "!search":
		h.cmdSearch(ctx, room, args)
	case "!room":
		h.cmdRoom(ctx, room, args)
	case "!sync":
		if err := h.Engine.Reconcile(ctx); err != nil {
			h.reply(ctx, room, fmt.Sprintf("⚠️ Sync finished with errors: %v", err))
		} else {
			h.reply(ctx, room, "✅ Sync complete.")
		}
	case "!status":
		h.reply(ctx, room, "✅ Bot is online and healthy.")
	case "!whoami":
		aff := muc.AffiliationNone
		if occ, ok := h.Tracker.Get(room, nickname); ok {
			aff = occ.Affiliation
		}
		h.reply(ctx, room, fmt.Sprintf("You are %s", aff))
	}
}

// authorized checks the sender's affiliation in the admin room. Only what
// the tracker currently observes counts; an absent occupant is not
// authorized.
func (h *Handler) authorized(nickname string) bool {
	occ, ok := h.Tracker.Get(h.AdminRoom, nickname)
	return ok && occ.Affiliation.Privileged()
}

func (h *Handler) cmdBan(ctx context.Context, room, issuer string, args []string, until *time.Time) {
	if len(args) < 1 {
		h.reply(ctx, room, "usage: !ban <jid|nick> [comment]")
		return
	}
	comment := strings.Join(args[1:], " ")
	err := h.Engine.RequestBan(ctx, args[0], until, issuer, comment)
	if errors.Is(err, engine.ErrRefused) {
		h.reply(ctx, room, fmt.Sprintf("❌ Refused: %v", err))
	} else if err != nil {
		h.reply(ctx, room, fmt.Sprintf("❌ Ban failed: %v", err))
	}
}

func (h *Handler) cmdTempban(ctx context.Context, room, issuer string, args []string) {
	if len(args) < 2 {
		h.reply(ctx, room, "usage: !tempban <jid|nick> <10m|2h|1d> [comment]")
		return
	}
	dur, err := ParseDuration(args[1])
	if err != nil {
		h.reply(ctx, room, fmt.Sprintf("❌ %v", err))
		return
	}
	until := time.Now().Add(dur)
	h.cmdBan(ctx, room, issuer, append(args[:1:1], args[2:]...), &until)
}

func (h *Handler) cmdBanlist(ctx context.Context, room string) {
	recs, err := h.Engine.QueryBanList(ctx, engine.AdminView)
	if err != nil {
		h.reply(ctx, room, fmt.Sprintf("❌ Banlist failed: %v", err))
		return
	}
	if len(recs) == 0 {
		h.reply(ctx, room, "No active bans.")
		return
	}
	lines := make([]string, 0, len(recs))
	for i := range recs {
		lines = append(lines, FormatRecord(&recs[i], time.Now()))
	}
	h.reply(ctx, room, strings.Join(lines, "\n"))
}

func (h *Handler) cmdWhy(ctx context.Context, room string, args []string) {
	if len(args) < 1 {
		h.reply(ctx, room, "usage: !why <jid|nick>")
		return
	}
	rec, err := h.Engine.QueryWhy(ctx, args[0], engine.AdminView)
	if errors.Is(err, banstore.ErrNotFound) {
		h.reply(ctx, room, fmt.Sprintf("No ban record for %s.", args[0]))
		return
	} else if err != nil {
		h.reply(ctx, room, fmt.Sprintf("❌ Lookup failed: %v", err))
		return
	}
	line := FormatRecord(rec, time.Now())
	if rec.Comment != "" {
		line += fmt.Sprintf(": %s", rec.Comment)
	}
	h.reply(ctx, room, line)
}

func (h *Handler) cmdSearch(ctx context.Context, room string, args []string) {
	if len(args) < 1 {
		h.reply(ctx, room, "usage: !search <text>")
		return
	}
	recs, err := h.Engine.QuerySearch(ctx, strings.Join(args, " "))
	if err != nil {
		h.reply(ctx, room, fmt.Sprintf("❌ Search failed: %v", err))
		return
	}
	if len(recs) == 0 {
		h.reply(ctx, room, "No matches.")
		return
	}
	lines := make([]string, 0, len(recs))
	for i := range recs {
		lines = append(lines, FormatRecord(&recs[i], time.Now()))
	}
	h.reply(ctx, room, strings.Join(lines, "\n"))
}

func (h *Handler) cmdRoom(ctx context.Context, room string, args []string) {
	if len(args) < 1 {
		h.reply(ctx, room, "usage: !room add/remove/list")
		return
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			h.reply(ctx, room, "usage: !room add <room-jid>")
			return
		}
		if err := h.Engine.AddProtectedRoom(ctx, args[1]); err != nil {
			h.reply(ctx, room, fmt.Sprintf("❌ %v", err))
			return
		}
		h.reply(ctx, room, fmt.Sprintf("✅ Added protection for %s", args[1]))
	case "remove":
		if len(args) != 2 {
			h.reply(ctx, room, "usage: !room remove <room-jid>")
			return
		}
		if err := h.Engine.RemoveProtectedRoom(ctx, args[1]); err != nil {
			h.reply(ctx, room, fmt.Sprintf("❌ %v", err))
			return
		}
		h.reply(ctx, room, fmt.Sprintf("♻️ Removed protection for %s", args[1]))
	case "list":
		rooms := h.Engine.ProtectedRooms()
		if len(rooms) == 0 {
			h.reply(ctx, room, "No protected rooms.")
			return
		}
		h.reply(ctx, room, strings.Join(rooms, "\n"))
	default:
		h.reply(ctx, room, "usage: !room add/remove/list")
	}
}

func (h *Handler) reply(ctx context.Context, room, body string) {
	if err := h.Client.SendMessage(ctx, room, body); err != nil {
		h.Logger.Error("failed to send reply", "room", room, "err", err)
	}
}

// ParseDuration parses the short ban duration syntax: a positive integer
// followed by m (minutes), h (hours) or d (days).
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q (want e.g. 10m, 2h, 1d)", s)
	}
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid duration %q (want e.g. 10m, 2h, 1d)", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid duration unit in %q (want m, h or d)", s)
}

// FormatRemaining renders a duration as "1d 2h 3m 4s"; anything non-positive
// reads "permanent".
func FormatRemaining(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs <= 0 {
		return "permanent"
	}
	days := secs / 86400
	hours := secs % 86400 / 3600
	mins := secs % 3600 / 60
	s := secs % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if s > 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

// FormatRecord renders one banlist line.
func FormatRecord(rec *banstore.BanRecord, now time.Time) string {
	if rec.ExpiresAt == nil {
		return fmt.Sprintf("%s (permanent, by %s)", rec.Target(), rec.Issuer)
	}
	return fmt.Sprintf("%s (remaining %s, by %s)", rec.Target(), FormatRemaining(rec.ExpiresAt.Sub(now)), rec.Issuer)
}
