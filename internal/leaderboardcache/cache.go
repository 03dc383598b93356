// Package leaderboardcache caches rendered leaderboard pages in Redis.
package leaderboardcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/lesson-ledger/internal/repository"
)

const keyPrefix = "ledger:leaderboard:"

// Cache provides Redis-backed caching for leaderboard pages.
type Cache struct {
	client *redis.Client
}

// NewCache constructs a leaderboard cache backed by the provided Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get fetches a cached page if it exists. A miss returns nil entries and a nil error.
func (c *Cache) Get(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached leaderboard: %w", err)
	}

	entries := []repository.LeaderboardEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode cached leaderboard: %w", err)
	}

	return entries, nil
}

// Set stores a page for the provided TTL.
func (c *Cache) Set(ctx context.Context, limit int, entries []repository.LeaderboardEntry, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if entries == nil {
		entries = []repository.LeaderboardEntry{}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(limit), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set cached leaderboard: %w", err)
	}

	return nil
}

// Invalidate removes every cached page.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached leaderboards: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached leaderboards: %w", err)
	}

	return nil
}

func cacheKey(limit int) string {
	return fmt.Sprintf("%s%d", keyPrefix, limit)
}
