package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/idempotency"
	"github.com/Proton-105/lesson-ledger/internal/instruction"
	"github.com/Proton-105/lesson-ledger/internal/progress"
	"github.com/Proton-105/lesson-ledger/internal/ratelimit"
)

const (
	outcomeInitialized     = "progress.initialized"
	outcomeLessonCompleted = "progress.lesson_completed"
	outcomeLessonDuplicate = "progress.lesson_duplicate"
)

// transactionResult is the stored, language-neutral outcome of a submission.
type transactionResult struct {
	Signature   string                 `json:"signature"`
	Instruction string                 `json:"instruction"`
	Account     string                 `json:"account"`
	Duplicate   bool                   `json:"duplicate"`
	Outcome     string                 `json:"outcome"`
	Progress    *progress.UserProgress `json:"progress"`
}

type transactionResponse struct {
	transactionResult
	Message  string `json:"message"`
	Replayed bool   `json:"replayed"`
}

func newTransactionResult(res progress.Result) transactionResult {
	outcome := outcomeLessonCompleted
	switch {
	case res.Kind == string(instruction.KindInitializeUser):
		outcome = outcomeInitialized
	case res.Duplicate:
		outcome = outcomeLessonDuplicate
	}

	return transactionResult{
		Signature:   res.Signature,
		Instruction: res.Kind,
		Account:     res.Account,
		Duplicate:   res.Duplicate,
		Outcome:     outcome,
		Progress:    res.Progress,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub instruction.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&sub); err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			err = apperrors.NewInvalidArgumentError("decode submission: %v", err)
		}
		s.writeError(w, r, err)
		return
	}

	// The per-signer budget is charged only after the signature verifies.
	if err := sub.Verify(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.guard != nil {
		limit, err := s.guard.AllowSigner(r.Context(), sub.Signer.String())
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			s.writeRateLimited(w, r, limit)
			return
		}
	}

	result, replayed, err := s.execute(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Instruction == string(instruction.KindInitializeUser) {
		status = http.StatusCreated
	}
	if replayed {
		w.Header().Set(headerReplayed, "true")
	}

	writeJSON(w, status, transactionResponse{
		transactionResult: result,
		Message:           s.translator(r).T(result.Outcome),
		Replayed:          replayed,
	})
}

// execute applies sub at most once per signature when an idempotency manager is configured.
func (s *Server) execute(ctx context.Context, sub instruction.Submission) (transactionResult, bool, error) {
	run := func(ctx context.Context) (any, error) {
		res, err := s.ledger.Execute(ctx, sub)
		if err != nil {
			return nil, err
		}
		return newTransactionResult(res), nil
	}

	if s.idempotency == nil {
		v, err := run(ctx)
		if err != nil {
			return transactionResult{}, false, err
		}
		return v.(transactionResult), false, nil
	}

	key := idempotency.SubmissionKey(s.ledger.Deriver().ProgramID().String(), sub.ID())
	res, err := s.idempotency.Execute(ctx, key, s.idempotencyTTL, run)
	if err != nil {
		return transactionResult{}, false, err
	}

	var stored transactionResult
	if err := res.Decode(&stored); err != nil {
		return transactionResult{}, false, apperrors.NewInternalError(err)
	}
	return stored, res.FromCache, nil
}
