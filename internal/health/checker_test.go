package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChecker_ReportsEachComponent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewChecker(testLogger())
	c.AddCheck("redis", NewRedisChecker(client))
	c.AddCheck("postgres", checkFunc(func(context.Context) error { return errors.New("connection refused") }))
	c.AddCheck("", NewRedisChecker(client))
	c.AddCheck("ignored", nil)

	assert.Equal(t, []string{"postgres", "redis"}, c.Names())

	results := c.Check(context.Background())
	assert.Equal(t, map[string]string{"redis": "OK", "postgres": "connection refused"}, results)
	assert.False(t, Healthy(results))

	mr.Close()
	results = c.Check(context.Background())
	assert.NotEqual(t, "OK", results["redis"])
}

func TestHealthy(t *testing.T) {
	assert.True(t, Healthy(map[string]string{}))
	assert.True(t, Healthy(map[string]string{"redis": "OK"}))
	assert.False(t, Healthy(map[string]string{"redis": "OK", "postgres": "down"}))
}

func TestNilCheckers(t *testing.T) {
	var db *DBChecker
	assert.Error(t, db.HealthCheck(context.Background()))

	var rc *RedisChecker
	assert.Error(t, rc.HealthCheck(context.Background()))
}
