// Package repository implements the PostgreSQL read model of progress accounts.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"

	"github.com/Proton-105/lesson-ledger/internal/progress"
)

// ErrNotFound is returned when no projected row matches.
var ErrNotFound = errors.New("projection not found")

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	Owner            string    `json:"owner"`
	Address          string    `json:"address"`
	Points           uint32    `json:"points"`
	LessonsCompleted int       `json:"lessons_completed"`
	AllocatedBalance uint64    `json:"allocated_balance"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProgressRepository defines read-model operations for progress accounts.
type ProgressRepository interface {
	Upsert(ctx context.Context, p *progress.UserProgress) error
	FindByOwner(ctx context.Context, owner solana.PublicKey) (*progress.UserProgress, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

type progressRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewProgressRepository creates a SQL-backed progress repository.
func NewProgressRepository(db *sql.DB, log *slog.Logger) ProgressRepository {
	if log == nil {
		log = slog.Default()
	}

	return &progressRepository{
		db:  db,
		log: log,
	}
}

// Upsert writes the latest state of an account. Rows never move backwards in points.
func (r *progressRepository) Upsert(ctx context.Context, p *progress.UserProgress) error {
	const query = `
		INSERT INTO user_progress (address, owner, completed_lessons, points, allocated_balance, bump, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (address) DO UPDATE SET
			completed_lessons = EXCLUDED.completed_lessons,
			points = EXCLUDED.points,
			allocated_balance = EXCLUDED.allocated_balance,
			updated_at = NOW()
		WHERE user_progress.points <= EXCLUDED.points
			AND cardinality(user_progress.completed_lessons) <= cardinality(EXCLUDED.completed_lessons)
	`

	lessons := p.CompletedLessons
	if lessons == nil {
		lessons = []string{}
	}

	if _, err := r.db.ExecContext(
		ctx,
		query,
		p.Address.String(),
		p.Owner.String(),
		pq.Array(lessons),
		int64(p.Points),
		strconv.FormatUint(p.AllocatedBalance, 10),
		int16(p.Bump),
	); err != nil {
		r.log.Error("failed to upsert progress projection", slog.String("address", p.Address.String()), slog.Any("error", err))
		return fmt.Errorf("upsert user progress: %w", err)
	}

	return nil
}

// FindByOwner returns the projected record of owner.
func (r *progressRepository) FindByOwner(ctx context.Context, owner solana.PublicKey) (*progress.UserProgress, error) {
	const query = `
		SELECT address, owner, completed_lessons, points, allocated_balance, bump
		FROM user_progress
		WHERE owner = $1
	`

	var (
		address, ownerStr, balance string
		lessons                    []string
		points                     int64
		bump                       int16
	)
	err := r.db.QueryRowContext(ctx, query, owner.String()).Scan(
		&address,
		&ownerStr,
		pq.Array(&lessons),
		&points,
		&balance,
		&bump,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		r.log.Error("failed to fetch progress projection", slog.String("owner", owner.String()), slog.Any("error", err))
		return nil, fmt.Errorf("select user progress by owner: %w", err)
	}

	return toProgress(address, ownerStr, lessons, points, balance, bump)
}

// Leaderboard returns the top accounts by points, ties broken by earliest update.
func (r *progressRepository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	const query = `
		SELECT address, owner, points, cardinality(completed_lessons), allocated_balance, updated_at
		FROM user_progress
		ORDER BY points DESC, updated_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.log.Error("failed to query leaderboard", slog.Any("error", err))
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var (
			entry   LeaderboardEntry
			points  int64
			balance string
		)
		if err := rows.Scan(&entry.Address, &entry.Owner, &points, &entry.LessonsCompleted, &balance, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}

		entry.Points = uint32(points)
		if entry.AllocatedBalance, err = strconv.ParseUint(balance, 10, 64); err != nil {
			return nil, fmt.Errorf("parse allocated balance of %s: %w", entry.Address, err)
		}
		entry.Rank = len(entries) + 1
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}

	return entries, nil
}

func toProgress(address, owner string, lessons []string, points int64, balance string, bump int16) (*progress.UserProgress, error) {
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner %q: %w", owner, err)
	}
	allocated, err := strconv.ParseUint(balance, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse allocated balance %q: %w", balance, err)
	}
	if lessons == nil {
		lessons = []string{}
	}

	return &progress.UserProgress{
		Address:          addr,
		Owner:            ownerKey,
		CompletedLessons: lessons,
		Points:           uint32(points),
		AllocatedBalance: allocated,
		Bump:             uint8(bump),
	}, nil
}
