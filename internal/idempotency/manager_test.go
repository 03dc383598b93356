package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Signature string `json:"signature"`
	Duplicate bool   `json:"duplicate"`
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_ReplaysCompletedOperation(t *testing.T) {
	_, client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger(), time.Second)
	ctx := context.Background()
	key := SubmissionKey("program", "sig-1")

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		return response{Signature: "sig-1"}, nil
	}

	first, err := m.Execute(ctx, key, time.Hour, op)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := m.Execute(ctx, key, time.Hour, op)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, calls)

	var decoded response
	require.NoError(t, second.Decode(&decoded))
	assert.Equal(t, response{Signature: "sig-1"}, decoded)
}

func TestManager_FailedOperationIsNotStored(t *testing.T) {
	_, client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger(), time.Second)
	ctx := context.Background()

	failure := errors.New("rejected")
	_, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (any, error) { return nil, failure })
	assert.ErrorIs(t, err, failure)

	result, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (any, error) { return response{Signature: "ok"}, nil })
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestManager_InProgress(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, testLogger())
	m := NewManager(store, testLogger(), 0)
	ctx := context.Background()

	locked, err := store.Lock(ctx, "busy", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = m.Execute(ctx, "busy", time.Hour, func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestCleaner_Sweep(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, keyPrefix+"no-ttl", "x", 0).Err())
	require.NoError(t, client.Set(ctx, keyPrefix+"long", "x", 48*time.Hour).Err())
	require.NoError(t, client.Set(ctx, keyPrefix+"fresh", "x", time.Hour).Err())
	require.NoError(t, client.Set(ctx, "progress:account:keep", "x", 0).Err())

	c := NewCleaner(client, testLogger(), time.Minute, 25*time.Hour)
	assert.Equal(t, 2, c.Sweep(ctx))

	assert.True(t, mr.Exists(keyPrefix+"fresh"))
	assert.True(t, mr.Exists("progress:account:keep"))
	assert.False(t, mr.Exists(keyPrefix+"no-ttl"))
}
