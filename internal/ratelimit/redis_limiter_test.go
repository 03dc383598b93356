package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceKey = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func newRedisLimiter(client *redis.Client, clock *fakeClock) *RedisLimiter {
	l := NewRedisLimiter(client, testLogger())
	l.now = clock.Now
	return l
}

func TestRedisLimiter_GuardKeysAreNamespaced(t *testing.T) {
	mr, client := setupTestRedis(t)
	guard := NewGuard(newRedisLimiter(client, newClock()), testRules(), testLogger())
	ctx := context.Background()

	_, err := guard.AllowGlobal(ctx)
	require.NoError(t, err)
	_, err = guard.AllowSigner(ctx, aliceKey)
	require.NoError(t, err)
	_, err = guard.AllowSigner(ctx, "trusted-signer")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		KeyPrefix + "global",
		KeyPrefix + "signer:" + aliceKey,
	}, mr.Keys())
}

func TestRedisLimiter_RejectedHitsAreNotRecorded(t *testing.T) {
	mr, client := setupTestRedis(t)
	clock := newClock()
	guard := NewGuard(newRedisLimiter(client, clock), testRules(), testLogger())
	ctx := context.Background()
	first := clock.Now()

	for i := 0; i < 2; i++ {
		result, err := guard.AllowSigner(ctx, aliceKey)
		require.NoError(t, err)
		assert.Equal(t, 1-i, result.Remaining)
		clock.Advance(10 * time.Second)
	}

	for i := 0; i < 3; i++ {
		result, err := guard.AllowSigner(ctx, aliceKey)
		require.ErrorIs(t, err, ErrLimitExceeded)
		assert.False(t, result.Allowed)
		assert.WithinDuration(t, first.Add(time.Minute), result.ResetAt, 0)
	}

	members, err := mr.ZMembers(KeyPrefix + SignerKey(aliceKey))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	clock.Advance(41 * time.Second)
	result, err := guard.AllowSigner(ctx, aliceKey)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestRedisLimiter_WindowsAreIndependent(t *testing.T) {
	_, client := setupTestRedis(t)
	guard := NewGuard(newRedisLimiter(client, newClock()), testRules(), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := guard.AllowSigner(ctx, aliceKey)
		require.NoError(t, err)
	}
	_, err := guard.AllowSigner(ctx, aliceKey)
	require.ErrorIs(t, err, ErrLimitExceeded)

	_, err = guard.AllowSigner(ctx, "bob")
	assert.NoError(t, err)
	_, err = guard.AllowGlobal(ctx)
	assert.NoError(t, err)
}

func TestRedisLimiter_KeyExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := newRedisLimiter(client, newClock())

	_, err := l.Check(context.Background(), SignerKey(aliceKey), 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, mr.TTL(KeyPrefix+SignerKey(aliceKey)))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(KeyPrefix+SignerKey(aliceKey)))
}

func TestCleaner_SweepsIdleSignerWindows(t *testing.T) {
	mr, client := setupTestRedis(t)
	clock := newClock()
	memory := NewMemoryLimiter(testLogger())
	memory.now = clock.Now
	guard := NewGuard(NewAdaptiveLimiter(newRedisLimiter(client, clock), memory, testLogger()), testRules(), testLogger())
	ctx := context.Background()

	_, err := guard.AllowSigner(ctx, aliceKey)
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)
	_, err = guard.AllowGlobal(ctx)
	require.NoError(t, err)

	c := NewCleaner(client, memory, testLogger(), time.Minute, time.Minute)
	c.now = clock.Now

	assert.Equal(t, 1, c.Sweep(ctx))
	assert.False(t, mr.Exists(KeyPrefix+SignerKey(aliceKey)))
	assert.True(t, mr.Exists(KeyPrefix+GlobalKey()))
}

func TestCleaner_DropsIdleFallbackWindows(t *testing.T) {
	_, client := setupTestRedis(t)
	clock := newClock()
	memory := NewMemoryLimiter(testLogger())
	memory.now = clock.Now
	guard := NewGuard(NewAdaptiveLimiter(failingLimiter{}, memory, testLogger()), testRules(), testLogger())
	ctx := context.Background()

	_, err := guard.AllowSigner(ctx, aliceKey)
	require.NoError(t, err)
	require.Equal(t, 1, memory.Len())

	clock.Advance(2 * time.Minute)
	c := NewCleaner(client, memory, testLogger(), time.Minute, time.Minute)
	c.now = clock.Now
	c.Sweep(ctx)

	assert.Equal(t, 0, memory.Len())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
