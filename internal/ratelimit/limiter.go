// Package ratelimit throttles ledger submissions service-wide and per signer.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// KeyPrefix namespaces every rate-limit window stored in Redis.
const KeyPrefix = "ledger:ratelimit:"

const (
	globalKey       = "global"
	signerKeyPrefix = "signer:"

	scopeGlobal = "global"
	scopeSigner = "signer"
	scopeOther  = "other"
)

// ErrLimitExceeded indicates the window of a key is full.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter checks and records one hit against a sliding window of key.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Result captures the state of a window after a check.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest hit leaves the window and a slot frees up.
	ResetAt time.Time
}

// RetryAfter returns the whole seconds until ResetAt, never less than one.
func (r *Result) RetryAfter() int {
	if r == nil {
		return 1
	}

	secs := int(math.Ceil(time.Until(r.ResetAt).Seconds()))
	return max(secs, 1)
}

// GlobalKey is the window shared by every request to the API.
func GlobalKey() string {
	return globalKey
}

// SignerKey is the window of submissions signed by signer.
func SignerKey(signer string) string {
	return signerKeyPrefix + signer
}

func scopeOf(key string) string {
	switch {
	case key == globalKey:
		return scopeGlobal
	case strings.HasPrefix(key, signerKeyPrefix):
		return scopeSigner
	default:
		return scopeOther
	}
}

func newResult(allowed bool, limit, hits int, oldest time.Time, window time.Duration) *Result {
	return &Result{
		Allowed:   allowed,
		Remaining: max(limit-hits, 0),
		ResetAt:   oldest.Add(window),
	}
}
