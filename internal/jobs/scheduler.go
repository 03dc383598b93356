package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks(reconcileCron string) error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newAsynqLogger(log)}),
		log:            log,
	}
}

func (s *scheduler) RegisterTasks(reconcileCron string) error {
	entryID, err := s.asynqScheduler.Register(reconcileCron, NewReconcileTask())
	if err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered reconcile task",
		slog.String("cron", reconcileCron), slog.String("entry_id", entryID))

	return nil
}

// Start runs the scheduler in the background until Shutdown is called.
func (s *scheduler) Start() error {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")

	s.asynqScheduler.Shutdown()
}
