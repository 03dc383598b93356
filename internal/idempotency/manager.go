// Package idempotency replays the stored result of an operation that already ran under the same key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

const (
	defaultLockTTL = time.Minute
	pollInterval   = 100 * time.Millisecond
)

// ErrRequestInProgress is returned when another caller holds the key and has not finished.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

// Operation produces a JSON-serialisable response.
type Operation func(ctx context.Context) (any, error)

// Result carries the encoded response and whether it was replayed.
type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Decode unmarshals the response into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Response, v)
}

// Manager runs an operation at most once per key within ttl.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
	wait    time.Duration
}

// NewManager builds a Manager over store. wait bounds how long a caller polls a key held by someone else.
func NewManager(store Store, log *slog.Logger, wait time.Duration) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: defaultLockTTL,
		wait:    wait,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	deadline := time.Now().Add(m.wait)
	for {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			m.log.Debug("replaying stored response", slog.String("key", key))
			return &Result{Response: record.Response, FromCache: true}, nil
		}

		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}
		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		if !time.Now().Before(deadline) {
			return nil, ErrRequestInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// A response may have been stored between Get and Lock.
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Response: record.Response, FromCache: true}, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: encoded}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: encoded, FromCache: false}, nil
}
