// Package handlers implements the asynq task handlers of the projection pipeline.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/hibiken/asynq"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/jobs"
	"github.com/Proton-105/lesson-ledger/internal/progress"
)

// AccountSource is the ledger read path the handlers project from.
type AccountSource interface {
	Fetch(ctx context.Context, address solana.PublicKey) (*progress.UserProgress, error)
	List(ctx context.Context) ([]*progress.UserProgress, error)
}

// Projector writes one account into the read model.
type Projector interface {
	Project(ctx context.Context, p *progress.UserProgress) error
}

// ProjectHandler projects the current state of a single account.
type ProjectHandler struct {
	source    AccountSource
	projector Projector
	log       *slog.Logger
}

func NewProjectHandler(source AccountSource, projector Projector, log *slog.Logger) *ProjectHandler {
	if log == nil {
		log = slog.Default()
	}

	return &ProjectHandler{source: source, projector: projector, log: log}
}

func (h *ProjectHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := jobs.DecodeProjectPayload(t)
	if err != nil {
		h.log.ErrorContext(ctx, "project: invalid payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	address, err := solana.PublicKeyFromBase58(payload.Address)
	if err != nil {
		return fmt.Errorf("%w: invalid address %q: %v", asynq.SkipRetry, payload.Address, err)
	}

	record, err := h.source.Fetch(ctx, address)
	if err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			h.log.WarnContext(ctx, "project: account vanished", slog.String("address", payload.Address))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	if err := h.projector.Project(ctx, record); err != nil {
		return err
	}

	h.log.DebugContext(ctx, "project: account projected",
		slog.String("address", payload.Address),
		slog.Any("points", record.Points),
	)
	return nil
}
