package engine

import (
	"log/slog"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"
	"github.com/envs-net/muc-banbot/roomstate"
)

// EngineTestFixture returns an engine wired to in-memory collaborators, with
// retry delays collapsed so tests run fast. Intentionally exported for use
// in other packages.
func EngineTestFixture() (*Engine, *muc.MockClient, *banstore.Memstore) {
	store := banstore.NewMemstore()
	tracker := roomstate.NewTracker()
	client := muc.NewMockClient()

	retry := RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		Retryable:   muc.IsRetryable,
	}
	eng := NewEngine(store, tracker, client, Config{
		AdminRoom:               "admin@muc.example.org",
		AnnounceToRooms:         true,
		ExpiryInterval:          10 * time.Millisecond,
		RosterRequestsPerSecond: 1000,
		Retry:                   &retry,
		Logger:                  slog.Default(),
	})
	return eng, client, store
}
