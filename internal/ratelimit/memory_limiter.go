package ratelimit

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryLimiter keeps sliding windows in process memory. It only sees the
// traffic of this instance, so it serves as the fallback behind Redis.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
	log     *slog.Logger
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an empty in-memory limiter.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
		log:     log,
	}
}

// Check records a hit for key unless its window already holds limit hits.
// Rejected hits are not recorded.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()
	if limit <= 0 {
		return newResult(false, limit, 0, now, window), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := dropBefore(m.windows[key], now.Add(-window))
	allowed := len(hits) < limit
	if allowed {
		hits = append(hits, now)
	}
	m.windows[key] = hits

	return newResult(allowed, limit, len(hits), hits[0], window), nil
}

// Cleanup forgets keys whose latest hit is older than maxAge.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, hits := range m.windows {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(m.windows, key)
			removed++
		}
	}

	if removed > 0 {
		m.log.Debug("in-memory rate limit windows dropped", slog.Int("keys", removed))
	}
	return removed
}

// Len reports how many keys currently hold a window.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// dropBefore removes hits older than start; hits are kept in ascending order.
func dropBefore(hits []time.Time, start time.Time) []time.Time {
	idx := sort.Search(len(hits), func(i int) bool {
		return !hits[i].Before(start)
	})
	return slices.Delete(hits, 0, idx)
}
