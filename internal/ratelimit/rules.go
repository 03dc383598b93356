package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/Proton-105/lesson-ledger/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// IsWhitelisted returns true if the signer bypasses rate limits.
func (r *Rules) IsWhitelisted(signer string) bool {
	return slices.Contains(r.config.Whitelist, signer)
}

// GetGlobalLimit returns the service-wide rule.
func (r *Rules) GetGlobalLimit() (int, time.Duration, error) {
	return parseRule(r.config.Global)
}

// GetPerSignerLimit returns the rule applied to each signer.
func (r *Rules) GetPerSignerLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerSigner)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}

// Guard applies Rules through a Limiter.
type Guard struct {
	limiter Limiter
	rules   *Rules
	log     *slog.Logger
}

// NewGuard binds rules to limiter.
func NewGuard(limiter Limiter, rules *Rules, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}

	return &Guard{limiter: limiter, rules: rules, log: log}
}

// AllowGlobal checks the service-wide limit. Limiter failures fail open.
func (g *Guard) AllowGlobal(ctx context.Context) (*Result, error) {
	if g == nil {
		return nil, nil
	}

	limit, window, err := g.rules.GetGlobalLimit()
	if err != nil {
		g.log.Error("failed to load global rate limit", slog.Any("error", err))
		return nil, nil
	}

	return g.check(ctx, GlobalKey(), limit, window)
}

// AllowSigner checks the per-signer limit unless the signer is whitelisted.
func (g *Guard) AllowSigner(ctx context.Context, signer string) (*Result, error) {
	if g == nil || g.rules.IsWhitelisted(signer) {
		return nil, nil
	}

	limit, window, err := g.rules.GetPerSignerLimit()
	if err != nil {
		g.log.Error("failed to load per-signer rate limit", slog.String("signer", signer), slog.Any("error", err))
		return nil, nil
	}

	return g.check(ctx, SignerKey(signer), limit, window)
}

func (g *Guard) check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	result, err := g.limiter.Check(ctx, key, limit, window)
	if errors.Is(err, ErrLimitExceeded) || (err == nil && result != nil && !result.Allowed) {
		g.log.Warn("rate limit exceeded", slog.String("scope", scopeOf(key)), slog.String("key", key))
		return result, ErrLimitExceeded
	}
	if err != nil {
		g.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return nil, nil
	}

	return result, nil
}
