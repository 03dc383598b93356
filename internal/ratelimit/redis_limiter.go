package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, records the hit only when there is room,
// and returns {allowed, hits, oldest hit score}. Scores are Unix milliseconds.
//
// KEYS[1] window key
// ARGV[1] exclusive trim bound, ARGV[2] now, ARGV[3] limit, ARGV[4] member, ARGV[5] ttl ms
var slidingWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local hits = redis.call('ZCARD', KEYS[1])
local allowed = 0
if hits < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	hits = hits + 1
	allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {allowed, hits, oldest[2] or ARGV[2]}
`)

// RedisLimiter shares sliding windows between API instances through Redis sorted sets.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter storing windows under KeyPrefix.
func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		now:    time.Now,
		log:    log,
	}
}

// Check atomically records a hit for key unless its window already holds limit hits.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := l.now()
	if limit <= 0 {
		return newResult(false, limit, 0, now, window), nil
	}

	nowMs := now.UnixMilli()
	args := []any{
		"(" + strconv.FormatInt(nowMs-window.Milliseconds(), 10),
		nowMs,
		limit,
		uuid.NewString(),
		(2 * window).Milliseconds(),
	}

	reply, err := slidingWindow.Run(ctx, l.client, []string{KeyPrefix + key}, args...).Slice()
	if err != nil {
		l.log.Error("rate limit script failed", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	allowed, hits, oldest, err := parseWindowReply(reply)
	if err != nil {
		l.log.Error("unexpected rate limit script reply", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	return newResult(allowed, limit, hits, time.UnixMilli(oldest), window), nil
}

func parseWindowReply(reply []any) (allowed bool, hits int, oldestMs int64, err error) {
	if len(reply) != 3 {
		return false, 0, 0, fmt.Errorf("want 3 values, got %d", len(reply))
	}

	flag, ok := reply[0].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("allowed flag has type %T", reply[0])
	}
	count, ok := reply[1].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("hit count has type %T", reply[1])
	}
	score, ok := reply[2].(string)
	if !ok {
		return false, 0, 0, fmt.Errorf("oldest score has type %T", reply[2])
	}
	oldest, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return false, 0, 0, fmt.Errorf("parse oldest score %q: %w", score, err)
	}

	return flag == 1, int(count), int64(oldest), nil
}
