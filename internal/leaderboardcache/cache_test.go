package leaderboardcache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/lesson-ledger/internal/repository"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client), mr
}

func TestCache_SetGetInvalidate(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	miss, err := c.Get(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, miss)

	entries := []repository.LeaderboardEntry{
		{Rank: 1, Owner: "alice", Points: 300, LessonsCompleted: 3},
		{Rank: 2, Owner: "bob", Points: 100, LessonsCompleted: 1},
	}
	require.NoError(t, c.Set(ctx, 10, entries, time.Minute))
	require.NoError(t, c.Set(ctx, 5, nil, time.Minute))

	got, err := c.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	empty, err := c.Get(ctx, 5)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists(cacheKey(10)))
	assert.False(t, mr.Exists(cacheKey(5)))
}

func TestCache_Expires(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 10, []repository.LeaderboardEntry{{Rank: 1}}, time.Second))
	mr.FastForward(2 * time.Second)

	got, err := c.Get(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_NilIsNoop(t *testing.T) {
	var c *Cache
	got, err := c.Get(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(context.Background()))
}
