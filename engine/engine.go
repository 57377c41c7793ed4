// Package engine implements the ban reconciliation and enforcement core:
// it owns the durable ban records, resolves targets against live membership,
// pushes enforcement actions out to every protected room under a shared
// concurrency bound, and heals drift between the store and observed room
// state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"
	"github.com/envs-net/muc-banbot/roomstate"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Engine drives all enforcement. User commands, membership events, the
// reconciliation sweep and the expiry worker all converge on the same
// ApplyBan/ApplyUnban paths, so enforcement behaves identically no matter
// who asked for it.
type Engine struct {
	logger  *slog.Logger
	store   banstore.Store
	tracker *roomstate.Tracker
	client  muc.Client

	adminRoom       string
	announceToRooms bool
	retry           RetryPolicy
	expiryInterval  time.Duration

	// sem bounds concurrent mutating transport calls across all rooms; it is
	// the backpressure mechanism against the remote service.
	sem *semaphore.Weighted

	// rosterLimiter throttles room roster fetches during reconciliation.
	rosterLimiter *rate.Limiter

	roomsLk sync.RWMutex
	rooms   map[string]bool
}

type Config struct {
	// AdminRoom receives the admin-facing copy of every enforcement
	// notification, with full JIDs.
	AdminRoom string

	// AnnounceToRooms enables the anonymized room-facing notifications.
	AnnounceToRooms bool

	// EnforceConcurrency is the size of the shared permit pool for mutating
	// transport calls. Defaults to 5.
	EnforceConcurrency int

	// RosterRequestsPerSecond limits roster fetches during reconciliation.
	// Defaults to 2.
	RosterRequestsPerSecond int

	// ExpiryInterval is the expiry worker tick. Defaults to 30s.
	ExpiryInterval time.Duration

	// Retry overrides the transport retry policy.
	Retry *RetryPolicy

	Logger *slog.Logger
}

func NewEngine(store banstore.Store, tracker *roomstate.Tracker, client muc.Client, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.EnforceConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	rosterRate := cfg.RosterRequestsPerSecond
	if rosterRate <= 0 {
		rosterRate = 2
	}
	interval := cfg.ExpiryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	retry := DefaultRetryPolicy()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &Engine{
		logger:          logger.With("component", "engine"),
		store:           store,
		tracker:         tracker,
		client:          client,
		adminRoom:       cfg.AdminRoom,
		announceToRooms: cfg.AnnounceToRooms,
		retry:           retry,
		expiryInterval:  interval,
		sem:             semaphore.NewWeighted(int64(concurrency)),
		rosterLimiter:   rate.NewLimiter(rate.Limit(rosterRate), 1),
		rooms:           make(map[string]bool),
	}
}

// Start brings the engine to its steady state: loads the protected room set
// from the store, joins the admin room and every protected room, and runs a
// reconciliation sweep against each of them.
func (e *Engine) Start(ctx context.Context) error {
	rooms, err := e.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("loading protected rooms: %w", err)
	}

	e.roomsLk.Lock()
	for _, room := range rooms {
		e.rooms[room] = true
	}
	e.roomsLk.Unlock()

	if e.adminRoom != "" {
		if err := e.client.JoinRoom(ctx, e.adminRoom); err != nil {
			return fmt.Errorf("joining admin room %s: %w", e.adminRoom, err)
		}
	}
	for _, room := range rooms {
		if err := e.client.JoinRoom(ctx, room); err != nil {
			e.logger.Error("failed to join protected room", "room", room, "err", err)
			continue
		}
		e.logger.Info("joined protected room", "room", room)
	}

	if err := e.Reconcile(ctx); err != nil {
		e.logger.Error("startup reconciliation finished with errors", "err", err)
	}
	return nil
}

// ProtectedRooms returns a sorted snapshot of the protected room set.
func (e *Engine) ProtectedRooms() []string {
	e.roomsLk.RLock()
	defer e.roomsLk.RUnlock()

	out := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// IsProtected reports whether a room is under enforcement.
func (e *Engine) IsProtected(room string) bool {
	e.roomsLk.RLock()
	defer e.roomsLk.RUnlock()
	return e.rooms[room]
}

// AddProtectedRoom persists the room, joins it, and starts enforcing there.
func (e *Engine) AddProtectedRoom(ctx context.Context, room string) error {
	if err := e.store.AddRoom(ctx, room); err != nil {
		return fmt.Errorf("persisting protected room: %w", err)
	}

	e.roomsLk.Lock()
	e.rooms[room] = true
	e.roomsLk.Unlock()

	if err := e.client.JoinRoom(ctx, room); err != nil {
		return fmt.Errorf("joining room %s: %w", room, err)
	}
	e.logger.Info("room added to protection", "room", room)
	return nil
}

// RemoveProtectedRoom stops enforcing in the room, leaves it, and drops its
// membership state.
func (e *Engine) RemoveProtectedRoom(ctx context.Context, room string) error {
	if err := e.store.RemoveRoom(ctx, room); err != nil {
		return fmt.Errorf("removing protected room: %w", err)
	}

	e.roomsLk.Lock()
	delete(e.rooms, room)
	e.roomsLk.Unlock()

	if err := e.client.LeaveRoom(ctx, room); err != nil {
		e.logger.Error("failed to leave room", "room", room, "err", err)
	}
	e.tracker.DropRoom(room)
	e.logger.Info("room removed from protection", "room", room)
	return nil
}
