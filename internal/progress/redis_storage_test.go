package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

func TestRedisStorage_CreateAndLoad(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())
	ctx := context.Background()

	p := &UserProgress{Address: solana.PublicKey{1}, Owner: solana.PublicKey{2}, CompletedLessons: []string{}, Bump: 255}
	require.NoError(t, storage.Create(ctx, p))

	got, err := storage.Load(ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	err = storage.Create(ctx, &UserProgress{Address: p.Address, Owner: solana.PublicKey{3}})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInitialized)

	got, err = storage.Load(ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKey{2}, got.Owner)
}

func TestRedisStorage_LoadNotFound(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())

	p, err := storage.Load(context.Background(), solana.PublicKey{7})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
}

func TestRedisStorage_Update(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())
	ctx := context.Background()
	address := solana.PublicKey{4}
	require.NoError(t, storage.Create(ctx, &UserProgress{Address: address, Owner: solana.PublicKey{5}}))

	updated, err := storage.Update(ctx, address, func(p *UserProgress) error {
		p.CompletedLessons = append(p.CompletedLessons, "L1")
		p.Points += 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(10), updated.Points)

	failure := apperrors.NewUnauthorizedError("nope")
	_, err = storage.Update(ctx, address, func(p *UserProgress) error {
		p.Points = 0
		return failure
	})
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	got, err := storage.Load(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, got.CompletedLessons)
	assert.Equal(t, uint32(10), got.Points)

	_, err = storage.Update(ctx, solana.PublicKey{99}, func(*UserProgress) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
}

func TestRedisStorage_List(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())
	ctx := context.Background()

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, storage.Create(ctx, &UserProgress{Address: solana.PublicKey{i}, Owner: solana.PublicKey{i}}))
	}
	require.NoError(t, client.Set(ctx, accountKeyPrefix+"not-a-key", "junk", 0).Err())

	list, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestLedger_WithRedisStorage(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	f := newFixture(t, NewRedisStorage(client, testLogger()), WithLocker(client, 0))
	user := newUser(t).PublicKey()
	account := f.initialize(t, user)

	_, err := f.ledger.InitializeUser(context.Background(), user, account)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInitialized)

	got, err := f.ledger.FetchByUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, user, got.Owner)
	assert.Empty(t, got.CompletedLessons)
}
