// Package projection keeps the PostgreSQL read model and leaderboard in step with the ledger.
package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/leaderboardcache"
	"github.com/Proton-105/lesson-ledger/internal/progress"
	"github.com/Proton-105/lesson-ledger/internal/repository"
	"github.com/Proton-105/lesson-ledger/pkg/metrics"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	leaderboardTTL          = 30 * time.Second
)

// Projector writes ledger records into the read model.
type Projector struct {
	repo    repository.ProgressRepository
	cache   *leaderboardcache.Cache
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

// NewProjector builds a Projector. cache may be nil.
func NewProjector(repo repository.ProgressRepository, cache *leaderboardcache.Cache, log *slog.Logger) *Projector {
	if log == nil {
		log = slog.Default()
	}

	breaker := apperrors.NewCircuitBreaker("postgres", apperrors.WithStateChange(func(name string, from, to apperrors.State) {
		log.Warn("circuit breaker state changed", slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
	}))

	return &Projector{repo: repo, cache: cache, breaker: breaker, log: log}
}

// Project upserts p and drops cached leaderboard pages.
func (p *Projector) Project(ctx context.Context, record *progress.UserProgress) error {
	err := p.breaker.Call(func() error {
		return p.repo.Upsert(ctx, record)
	})
	if err != nil {
		metrics.RecordProjection("error")
		return err
	}
	metrics.RecordProjection("ok")

	if err := p.cache.Invalidate(ctx); err != nil {
		p.log.Warn("failed to invalidate leaderboard cache", slog.Any("error", err))
	}

	return nil
}

// FindByOwner returns the projected record of owner. A missing row is RecordNotFound.
func (p *Projector) FindByOwner(ctx context.Context, owner solana.PublicKey) (*progress.UserProgress, error) {
	var record *progress.UserProgress
	err := p.breaker.Call(func() error {
		var qErr error
		record, qErr = p.repo.FindByOwner(ctx, owner)
		if errors.Is(qErr, repository.ErrNotFound) {
			return nil
		}
		return qErr
	})
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if record == nil {
		return nil, apperrors.NewRecordNotFoundError(owner.String())
	}

	return record, nil
}

// Leaderboard returns the top limit accounts, served from cache when possible.
func (p *Projector) Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return nil, apperrors.NewInvalidArgumentError("limit must be at most %d", MaxLeaderboardLimit)
	}

	cached, err := p.cache.Get(ctx, limit)
	if err != nil {
		p.log.Warn("leaderboard cache read failed", slog.Any("error", err))
	}
	if cached != nil {
		return cached, nil
	}

	var entries []repository.LeaderboardEntry
	err = p.breaker.Call(func() error {
		var qErr error
		entries, qErr = p.repo.Leaderboard(ctx, limit)
		return qErr
	})
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if entries == nil {
		entries = []repository.LeaderboardEntry{}
	}

	if err := p.cache.Set(ctx, limit, entries, leaderboardTTL); err != nil {
		p.log.Warn("leaderboard cache write failed", slog.Any("error", err))
	}

	return entries, nil
}
