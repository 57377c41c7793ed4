package engine

import (
	"context"
	"testing"
	"time"

	"github.com/envs-net/muc-banbot/muc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTarget(t *testing.T) {
	assert := assert.New(t)

	tgt := ClassifyTarget("user@example.org/laptop")
	assert.Equal(TargetJID, tgt.Kind)
	assert.Equal("user@example.org", tgt.Value)

	// mixed-case input is canonicalized
	tgt = ClassifyTarget("SPAMMER@Example.org/Phone")
	assert.Equal(TargetJID, tgt.Kind)
	assert.Equal("spammer@example.org", tgt.Value)

	tgt = ClassifyTarget("ghost")
	assert.Equal(TargetNickname, tgt.Kind)
	assert.Equal("ghost", tgt.Value)
}

func TestResolveNicknameToJID(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)
	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "Spammy", "spammer@example.org/res", muc.AffiliationNone, muc.RoleParticipant))

	res := eng.Resolve("spammy")
	assert.Equal("spammer@example.org", res.JID)
	assert.Equal("Spammy", res.Nickname)
}

func TestResolveJIDToNickname(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)
	require.NoError(t, eng.HandleOccupantJoined(ctx, roomGeneral, "Spammy", "spammer@example.org", muc.AffiliationNone, muc.RoleParticipant))

	res := eng.Resolve("SPAMMER@example.org/phone")
	assert.Equal("spammer@example.org", res.JID)
	assert.Equal("Spammy", res.Nickname)
}

func TestResolveUnknownNicknameBestEffort(t *testing.T) {
	assert := assert.New(t)

	eng, _, _ := EngineTestFixture()
	protectRooms(t, eng, roomGeneral)

	res := eng.Resolve("ghost")
	assert.Empty(res.JID)
	assert.Equal("ghost", res.Nickname)
}

func TestRetryPolicyDo(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, Retryable: muc.IsRetryable}

	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		if calls < 3 {
			return muc.ErrTimeout
		}
		return nil
	})
	assert.NoError(err)
	assert.Equal(3, calls)

	calls = 0
	err = p.Do(ctx, func() error {
		calls++
		return muc.ErrRejected
	})
	assert.ErrorIs(err, muc.ErrRejected)
	assert.Equal(1, calls)

	calls = 0
	err = p.Do(ctx, func() error {
		calls++
		return muc.ErrTimeout
	})
	assert.ErrorIs(err, muc.ErrTimeout)
	assert.Equal(3, calls)
}
