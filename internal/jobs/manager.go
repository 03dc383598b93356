// Package jobs runs the asynq tasks that project ledger accounts into the read model.
package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/lesson-ledger/internal/progress"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) Close() error {
	return m.client.Close()
}

// ProjectionHook returns a ledger commit hook that enqueues a projection of each committed account.
// Enqueue failures are logged; the scheduled reconcile catches the account up later.
func ProjectionHook(m Manager, log *slog.Logger) progress.CommitHook {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx context.Context, p *progress.UserProgress) {
		address := p.Address.String()

		task, err := NewProjectTask(address)
		if err != nil {
			log.ErrorContext(ctx, "jobs: failed to build projection task", slog.String("address", address), slog.Any("error", err))
			return
		}

		if _, err := m.Enqueue(context.WithoutCancel(ctx), task); err != nil {
			log.WarnContext(ctx, "jobs: failed to enqueue projection", slog.String("address", address), slog.Any("error", err))
		}
	}
}
