// Package metrics exposes the ledger's Prometheus metrics.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/progress"
)

var (
	instructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_instructions_total",
			Help: "Total number of executed instructions labeled by instruction and outcome",
		},
		[]string{"instruction", "outcome"},
	)
	instructionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_instruction_duration_seconds",
			Help:    "Duration of instruction execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instruction"},
	)
	accountTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_account_transitions_total",
			Help: "Total number of progress account transitions",
		},
		[]string{"instruction", "from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Total number of handled errors split by kind and severity",
		},
		[]string{"kind", "severity"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	projectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_projections_total",
			Help: "Total number of account projections written to the read model",
		},
		[]string{"outcome"},
	)
	activeAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_active_accounts",
			Help: "Current number of initialized progress accounts",
		},
	)
	completedLessons = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_completed_lessons",
			Help: "Total lesson completions recorded across all accounts",
		},
	)
)

func init() {
	progress.RegisterTransitionRecorder(RecordTransition)
	progress.RegisterInstructionRecorder(RecordInstruction)
	apperrors.RegisterErrorRecorder(RecordError)
}

// RecordInstruction increments instruction counters and records duration.
func RecordInstruction(instruction, outcome string, duration time.Duration) {
	if instruction == "" {
		instruction = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	instructionsTotal.WithLabelValues(instruction, outcome).Inc()
	instructionDurationSeconds.WithLabelValues(instruction).Observe(duration.Seconds())
}

// RecordTransition tracks account state transitions.
func RecordTransition(instruction, from, to string) {
	accountTransitionsTotal.WithLabelValues(instruction, from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(kind, severity string) {
	if kind == "" {
		kind = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(kind, severity).Inc()
}

// RecordHTTPRequest tracks one served HTTP request.
func RecordHTTPRequest(route, code string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordProjection tracks read-model writes.
func RecordProjection(outcome string) {
	projectionsTotal.WithLabelValues(outcome).Inc()
}

// AccountLister is the subset of the ledger the collector polls.
type AccountLister interface {
	List(ctx context.Context) ([]*progress.UserProgress, error)
}

// AccountsCollector periodically gathers account totals and emits gauge metrics.
type AccountsCollector struct {
	accounts AccountLister
	interval time.Duration
	log      *slog.Logger
}

// NewAccountsCollector builds a collector bound to the provided ledger.
func NewAccountsCollector(accounts AccountLister, interval time.Duration, log *slog.Logger) *AccountsCollector {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &AccountsCollector{accounts: accounts, interval: interval, log: log}
}

// Run polls the ledger every interval, updating gauges until ctx is cancelled.
func (c *AccountsCollector) Run(ctx context.Context) {
	if c == nil || c.accounts == nil {
		return
	}

	for {
		if err := c.Collect(ctx); err != nil {
			c.log.Warn("account metrics collection failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

// Collect performs one polling pass.
func (c *AccountsCollector) Collect(ctx context.Context) error {
	list, err := c.accounts.List(ctx)
	if err != nil {
		return err
	}

	lessons := 0
	for _, p := range list {
		lessons += len(p.CompletedLessons)
	}

	activeAccounts.Set(float64(len(list)))
	completedLessons.Set(float64(lessons))
	return nil
}
