package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

const (
	accountKeyPrefix   = "progress:account:"
	accountScanPattern = accountKeyPrefix + "*"
	accountScanBatch   = 100
	maxWatchAttempts   = 3
)

// RedisStorage persists encoded progress accounts in Redis.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client *redis.Client, log *slog.Logger) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
	}
}

// Load returns the record at address or RecordNotFound when absent.
func (s *RedisStorage) Load(ctx context.Context, address solana.PublicKey) (*UserProgress, error) {
	data, err := s.client.Get(ctx, accountKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NewRecordNotFoundError(address.String())
		}

		s.log.Error("failed to get progress account from redis", "address", address.String(), "error", err)
		return nil, apperrors.NewStorageError(err)
	}

	p, err := DecodeAccount(address, data)
	if err != nil {
		s.log.Error("failed to decode progress account", "address", address.String(), "error", err)
		return nil, apperrors.NewInternalError(err)
	}

	return p, nil
}

// Create writes p with SETNX so an existing account is never overwritten.
func (s *RedisStorage) Create(ctx context.Context, p *UserProgress) error {
	data, err := EncodeAccount(p)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	created, err := s.client.SetNX(ctx, accountKey(p.Address), data, 0).Result()
	if err != nil {
		s.log.Error("failed to create progress account", "address", p.Address.String(), "error", err)
		return apperrors.NewStorageError(err)
	}
	if !created {
		return apperrors.NewAlreadyInitializedError(p.Address.String())
	}

	return nil
}

// Update reads, mutates and writes the account inside a WATCH/MULTI transaction.
func (s *RedisStorage) Update(ctx context.Context, address solana.PublicKey, fn MutateFunc) (*UserProgress, error) {
	key := accountKey(address)

	var updated *UserProgress
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.NewRecordNotFoundError(address.String())
			}
			return apperrors.NewStorageError(err)
		}

		p, err := DecodeAccount(address, data)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if err := fn(p); err != nil {
			return err
		}

		encoded, err := EncodeAccount(p)
		if err != nil {
			return apperrors.NewInternalError(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}

		updated = p
		return nil
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Warn("progress account changed during update, retrying", "address", address.String(), "attempt", attempt+1)
			continue
		}

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.log.Error("failed to update progress account", "address", address.String(), "error", err)
		return nil, apperrors.NewStorageError(err)
	}

	return nil, apperrors.NewAccountLockedError(address.String())
}

// List scans every progress account key.
func (s *RedisStorage) List(ctx context.Context) ([]*UserProgress, error) {
	var (
		cursor uint64
		result []*UserProgress
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, accountScanPattern, accountScanBatch).Result()
		if err != nil {
			s.log.Error("failed to scan progress accounts", "error", err)
			return nil, apperrors.NewStorageError(err)
		}

		for _, key := range keys {
			address, err := addressFromKey(key)
			if err != nil {
				s.log.Warn("skipping malformed progress key", "key", key, "error", err)
				continue
			}

			p, err := s.Load(ctx, address)
			if err != nil {
				if errors.Is(err, apperrors.ErrRecordNotFound) {
					continue
				}
				return nil, err
			}
			result = append(result, p)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.String() < result[j].Address.String()
	})
	return result, nil
}

func accountKey(address solana.PublicKey) string {
	return accountKeyPrefix + address.String()
}

func addressFromKey(key string) (solana.PublicKey, error) {
	raw, ok := strings.CutPrefix(key, accountKeyPrefix)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unexpected key %q", key)
	}
	return solana.PublicKeyFromBase58(raw)
}
