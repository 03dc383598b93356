package handlers

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ReconcileHandler re-projects every ledger account.
type ReconcileHandler struct {
	source    AccountSource
	projector Projector
	log       *slog.Logger
}

func NewReconcileHandler(source AccountSource, projector Projector, log *slog.Logger) *ReconcileHandler {
	if log == nil {
		log = slog.Default()
	}

	return &ReconcileHandler{source: source, projector: projector, log: log}
}

// ProcessTask projects all accounts, stopping at the first failure so the task is retried.
func (h *ReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	records, err := h.source.List(ctx)
	if err != nil {
		return err
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.projector.Project(ctx, record); err != nil {
			h.log.ErrorContext(ctx, "reconcile: projection failed",
				slog.String("address", record.Address.String()), slog.Any("error", err))
			return err
		}
	}

	h.log.InfoContext(ctx, "reconcile: accounts projected", slog.Int("accounts", len(records)))
	return nil
}
