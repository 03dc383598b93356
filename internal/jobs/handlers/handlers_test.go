package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/lesson-ledger/internal/jobs"
	"github.com/Proton-105/lesson-ledger/internal/progress"
)

type memorySource struct {
	storage *progress.MemoryStorage
}

func (s memorySource) Fetch(ctx context.Context, address solana.PublicKey) (*progress.UserProgress, error) {
	return s.storage.Load(ctx, address)
}

func (s memorySource) List(ctx context.Context) ([]*progress.UserProgress, error) {
	return s.storage.List(ctx)
}

type recordingProjector struct {
	projected []*progress.UserProgress
	err       error
}

func (p *recordingProjector) Project(_ context.Context, record *progress.UserProgress) error {
	if p.err != nil {
		return p.err
	}
	p.projected = append(p.projected, record)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, n int) memorySource {
	t.Helper()

	storage := progress.NewMemoryStorage()
	for i := 1; i <= n; i++ {
		require.NoError(t, storage.Create(context.Background(), &progress.UserProgress{
			Address: solana.PublicKey{byte(i)},
			Owner:   solana.PublicKey{byte(i), 1},
			Points:  uint32(i * 10),
		}))
	}
	return memorySource{storage: storage}
}

func TestProjectHandler(t *testing.T) {
	source := seed(t, 1)
	projector := &recordingProjector{}
	h := NewProjectHandler(source, projector, testLogger())
	ctx := context.Background()

	task, err := jobs.NewProjectTask(solana.PublicKey{1}.String())
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(ctx, task))
	require.Len(t, projector.projected, 1)
	assert.Equal(t, uint32(10), projector.projected[0].Points)

	missing, err := jobs.NewProjectTask(solana.PublicKey{42}.String())
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(ctx, missing), asynq.SkipRetry)

	garbage := asynq.NewTask(jobs.TaskTypeProject, []byte("{"))
	assert.ErrorIs(t, h.ProcessTask(ctx, garbage), asynq.SkipRetry)
}

func TestProjectHandler_ProjectorFailureIsRetried(t *testing.T) {
	failure := errors.New("db down")
	h := NewProjectHandler(seed(t, 1), &recordingProjector{err: failure}, testLogger())

	task, err := jobs.NewProjectTask(solana.PublicKey{1}.String())
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, failure)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestReconcileHandler(t *testing.T) {
	projector := &recordingProjector{}
	h := NewReconcileHandler(seed(t, 3), projector, testLogger())

	require.NoError(t, h.ProcessTask(context.Background(), jobs.NewReconcileTask()))
	assert.Len(t, projector.projected, 3)
}
