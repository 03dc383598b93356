package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/lesson-ledger/pkg/logger"
)

var errorRecorder = func(kind, severity string) {}

// RegisterErrorRecorder allows external packages to observe handled errors.
func RegisterErrorRecorder(recorder func(kind, severity string)) {
	if recorder == nil {
		errorRecorder = func(string, string) {}
		return
	}

	errorRecorder = recorder
}

type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle logs err, reports it when severe, and returns it normalized to an AppError.
// Unknown errors become KindInternal.
func (h *Handler) Handle(ctx context.Context, err error) *AppError {
	if err == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	log := slog.Default()
	if h != nil && h.log != nil {
		log = h.log
	}

	var appErr *AppError
	if !errors.As(err, &appErr) || appErr == nil {
		appErr = NewInternalError(err)
	}

	attrs := []slog.Attr{
		slog.String("code", appErr.Code),
		slog.String("kind", string(appErr.Kind)),
		slog.String("message", appErr.Message),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
	}

	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	level := slog.LevelWarn
	if appErr.Severity == SeverityHigh || appErr.Severity == SeverityCritical {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, "ledger error", attrs...)

	errorRecorder(string(appErr.Kind), string(appErr.Severity))

	if h != nil && h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
		h.sendToSentry(appErr)
	}

	return appErr
}

func (h *Handler) sendToSentry(err *AppError) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		if err.Code != "" {
			scope.SetTag("code", err.Code)
		}
		if err.Kind != "" {
			scope.SetTag("kind", string(err.Kind))
		}
		if err.Severity != "" {
			scope.SetTag("severity", string(err.Severity))
		}

		sentry.CaptureException(err)
	})
}
