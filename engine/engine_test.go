package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/muc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	roomGeneral = "general@muc.example.org"
	roomRandom  = "random@muc.example.org"
)

func protectRooms(t *testing.T, eng *Engine, rooms ...string) {
	t.Helper()
	ctx := context.Background()
	for _, room := range rooms {
		require.NoError(t, eng.AddProtectedRoom(ctx, room))
	}
}

func TestRequestBanRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral, roomRandom)

	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "spammy", "spammer@example.org/res", muc.AffiliationNone, muc.RoleParticipant))

	assert.NoError(eng.RequestBan(ctx, "spammer@example.org", nil, "alice", "spam"))

	// record round-trips through QueryWhy
	rec, err := eng.QueryWhy(ctx, "spammer@example.org", AdminView)
	assert.NoError(err)
	assert.Equal("alice", rec.Issuer)
	assert.Equal("spam", rec.Comment)
	assert.Nil(rec.ExpiresAt)
	assert.Equal("spammy", rec.Nickname)

	// enforced in every protected room
	assert.Equal(muc.AffiliationOutcast, client.Affiliation(roomGeneral, "spammer@example.org"))
	assert.Equal(muc.AffiliationOutcast, client.Affiliation(roomRandom, "spammer@example.org"))

	// present occupant was kicked
	kicked := false
	for _, rc := range client.RoleChanges() {
		if rc.Room == roomGeneral && rc.Nickname == "spammy" && rc.Role == muc.RoleNone {
			kicked = true
		}
	}
	assert.True(kicked)

	assert.NoError(eng.RequestUnban(ctx, "spammer@example.org", "alice"))

	_, err = eng.QueryWhy(ctx, "spammer@example.org", AdminView)
	assert.ErrorIs(err, banstore.ErrNotFound)
	assert.Equal(muc.AffiliationNone, client.Affiliation(roomGeneral, "spammer@example.org"))
	assert.Equal(muc.AffiliationNone, client.Affiliation(roomRandom, "spammer@example.org"))
}

func TestRequestBanIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	assert.NoError(eng.RequestBan(ctx, "spammer@example.org", nil, "alice", "spam"))
	assert.NoError(eng.RequestBan(ctx, "spammer@example.org", nil, "bob", "still spam"))

	all, err := store.ListAll(ctx)
	assert.NoError(err)
	assert.Len(all, 1)
	assert.Equal("bob", all[0].Issuer)
	assert.Equal(muc.AffiliationOutcast, client.Affiliation(roomGeneral, "spammer@example.org"))
}

func TestGuardRefusesPrivileged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral, roomRandom)

	// admin in only one of the rooms; the refusal must still cover the
	// whole request, with nothing persisted and nothing enforced
	require.NoError(t, eng.HandleOccupantJoined(ctx, roomRandom, "boss", "boss@example.org", muc.AffiliationAdmin, muc.RoleModerator))

	err := eng.RequestBan(ctx, "boss@example.org", nil, "alice", "")
	assert.ErrorIs(err, ErrRefused)

	all, lerr := store.ListAll(ctx)
	assert.NoError(lerr)
	assert.Empty(all)
	assert.Equal(muc.AffiliationNone, client.Affiliation(roomGeneral, "boss@example.org"))
	assert.Empty(client.RoleChanges())
}

func TestGuardByNickname(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "Boss", "boss@example.org", muc.AffiliationOwner, muc.RoleModerator))

	err := eng.RequestBan(ctx, "boss", nil, "alice", "")
	assert.ErrorIs(err, ErrRefused)
}

func TestNicknameOnlyBan(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	until := time.Now().Add(time.Hour)
	assert.NoError(eng.RequestBan(ctx, "ghost", &until, "bob", ""))

	// stored nickname-only; no identity to enforce against yet
	rec, err := store.FindByNickname(ctx, "ghost")
	assert.NoError(err)
	assert.Empty(rec.JID)
	assert.Equal(muc.AffiliationNone, client.Affiliation(roomGeneral, "ghost@example.org"))

	// the moment a matching occupant joins, enforcement kicks in and the
	// record learns the JID
	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "Ghost", "ghost@example.org", muc.AffiliationNone, muc.RoleParticipant))

	assert.Equal(muc.AffiliationOutcast, client.Affiliation(roomGeneral, "ghost@example.org"))
	rec, err = store.FindByNickname(ctx, "ghost")
	assert.NoError(err)
	assert.Equal("ghost@example.org", rec.JID)

	// the upgrade replaced the nickname-only record, it did not add a second
	all, err := store.ListAll(ctx)
	assert.NoError(err)
	assert.Len(all, 1)

	kicked := false
	for _, rc := range client.RoleChanges() {
		if rc.Room == roomGeneral && rc.Nickname == "Ghost" && rc.Role == muc.RoleNone {
			kicked = true
		}
	}
	assert.True(kicked)
}

func TestJoinByPrivilegedNotEnforced(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	// record created out-of-band against someone who is admin in this room
	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{Nickname: "boss", Issuer: "alice"}))
	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "boss", "boss@example.org", muc.AffiliationAdmin, muc.RoleModerator))

	assert.Empty(client.RoleChanges())
	assert.Equal(muc.AffiliationNone, client.Affiliation(roomGeneral, "boss@example.org"))
}

func TestExpiredRecordNotEnforcedOnJoin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{JID: "old@example.org", ExpiresAt: &past}))

	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "old", "old@example.org", muc.AffiliationNone, muc.RoleParticipant))
	assert.Empty(client.RoleChanges())
}

func TestRequestUnbanLocalpartFallback(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{JID: "alice@example.org", Issuer: "mod"}))

	// "alice" is nickname-shaped but matches the stored JID's localpart
	assert.NoError(eng.RequestUnban(ctx, "alice", "mod"))

	all, err := store.ListAll(ctx)
	assert.NoError(err)
	assert.Empty(all)
}

func TestRequestUnbanWithoutRecordClearsRooms(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	// leftover room-level outcast with no record in the store
	client.SeedAffiliation(roomGeneral, "leftover@example.org", muc.AffiliationOutcast)

	assert.NoError(eng.RequestUnban(ctx, "leftover@example.org", "mod"))
	assert.Equal(muc.AffiliationNone, client.Affiliation(roomGeneral, "leftover@example.org"))

	// no record was lifted, so the cleanup is silent
	assert.Empty(client.Messages())
}

func TestUnbanAnnouncedOnlyWhenRecordLifted(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{JID: "spammer@example.org", Issuer: "alice"}))
	assert.NoError(eng.RequestUnban(ctx, "spammer@example.org", "mod"))

	announced := 0
	for _, msg := range client.Messages() {
		if strings.Contains(msg.Body, "Unbanned") {
			announced++
		}
	}
	assert.NotZero(announced)

	// a typo'd target with no record clears rooms without a word
	before := len(client.Messages())
	assert.NoError(eng.RequestUnban(ctx, "nobody@example.org", "mod"))
	assert.Len(client.Messages(), before)
}

func TestTimeoutRetriedRejectionNot(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	var timeouts, rejections atomic.Int32
	client.FailAffiliation = func(room, jid string, aff muc.Affiliation) error {
		if jid == "flaky@example.org" && timeouts.Add(1) < 3 {
			return muc.ErrTimeout
		}
		if jid == "denied@example.org" {
			rejections.Add(1)
			return muc.ErrRejected
		}
		return nil
	}

	// two timeouts, then success on the third attempt
	assert.NoError(eng.RequestBan(ctx, "flaky@example.org", nil, "alice", ""))
	assert.Equal(int32(3), timeouts.Load())
	assert.Equal(muc.AffiliationOutcast, client.Affiliation(roomGeneral, "flaky@example.org"))

	// rejection aborts immediately, exactly one attempt; the request still
	// succeeds because the store write did
	assert.NoError(eng.RequestBan(ctx, "denied@example.org", nil, "alice", ""))
	assert.Equal(int32(1), rejections.Load())
}

func TestEnforcementConcurrencyBound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, _ := EngineTestFixture()
	for i := 0; i < 50; i++ {
		protectRooms(t, eng, fmt.Sprintf("room%02d@muc.example.org", i))
	}
	client.CallDelay = 5 * time.Millisecond

	assert.NoError(eng.RequestBan(ctx, "spammer@example.org", nil, "alice", ""))
	assert.LessOrEqual(client.MaxInflight(), 5)
	assert.Equal(muc.AffiliationOutcast, client.Affiliation("room49@muc.example.org", "spammer@example.org"))
}

func TestQueryBanListScope(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, store := EngineTestFixture()
	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{JID: "spammer@example.org", Issuer: "alice"}))

	admin, err := eng.QueryBanList(ctx, AdminView)
	assert.NoError(err)
	require.Len(t, admin, 1)
	assert.Equal("spammer@example.org", admin[0].JID)

	room, err := eng.QueryBanList(ctx, RoomView)
	assert.NoError(err)
	require.Len(t, room, 1)
	assert.Equal("s***@example.org", room[0].JID)
}

func TestQuerySearch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, store := EngineTestFixture()
	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{JID: "spammer@example.org", Comment: "flooding the room"}))
	require.NoError(t, store.Upsert(ctx, banstore.BanRecord{Nickname: "troll42"}))

	hits, err := eng.QuerySearch(ctx, "flood")
	assert.NoError(err)
	assert.Len(hits, 1)
}

func TestEngineStart(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, client, store := EngineTestFixture()
	require.NoError(t, store.AddRoom(ctx, roomGeneral))
	require.NoError(t, store.AddRoom(ctx, roomRandom))

	// drift present before startup: an out-of-band outcast to adopt
	client.SeedAffiliation(roomGeneral, "orphan@example.org", muc.AffiliationOutcast)

	require.NoError(t, eng.Start(ctx))

	assert.True(client.Joined("admin@muc.example.org"))
	assert.True(client.Joined(roomGeneral))
	assert.True(client.Joined(roomRandom))
	assert.Equal([]string{roomGeneral, roomRandom}, eng.ProtectedRooms())

	// startup reconciliation ran
	rec, err := store.FindByJID(ctx, "orphan@example.org")
	require.NoError(t, err)
	assert.Equal(banstore.IssuerSync, rec.Issuer)
}

func TestStoreFailurePropagates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)
	eng.store = failingStore{}

	err := eng.RequestBan(ctx, "spammer@example.org", nil, "alice", "")
	assert.Error(err)
	assert.NotErrorIs(err, ErrRefused)
}

type failingStore struct {
	banstore.Store
}

func (failingStore) Upsert(ctx context.Context, rec banstore.BanRecord) error {
	return errors.New("store unavailable")
}

func (failingStore) ListRooms(ctx context.Context) ([]string, error) {
	return nil, errors.New("store unavailable")
}
