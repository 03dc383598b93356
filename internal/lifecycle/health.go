package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/lesson-ledger/internal/health"
)

// ErrShuttingDown is reported by readiness once shutdown has begun.
var ErrShuttingDown = errors.New("service is shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes answers liveness from process state and readiness from component checks.
type Probes struct {
	log      *slog.Logger
	checker  *health.Checker
	draining atomic.Bool
}

// NewProbes creates probes over checker. A nil checker makes readiness depend only on draining.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, checker: checker}
}

// Liveness reports success while the process is running.
func (p *Probes) Liveness(ctx context.Context) error {
	p.log.Debug("liveness probe called")
	return nil
}

// Readiness fails while draining or when any component check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrShuttingDown
	}
	if p.checker == nil {
		return nil
	}

	results := p.checker.Check(ctx)
	if health.Healthy(results) {
		return nil
	}

	failed := make([]string, 0, len(results))
	for name, status := range results {
		if status != "OK" {
			failed = append(failed, fmt.Sprintf("%s: %s", name, status))
		}
	}
	sort.Strings(failed)
	return errors.New(strings.Join(failed, "; "))
}

// Status returns per-component results for reporting.
func (p *Probes) Status(ctx context.Context) map[string]string {
	if p.checker == nil {
		return map[string]string{}
	}
	return p.checker.Check(ctx)
}

// Drain marks the service as not ready so load balancers stop routing to it.
func (p *Probes) Drain() {
	if !p.draining.Swap(true) {
		p.log.Info("readiness switched to draining")
	}
}
