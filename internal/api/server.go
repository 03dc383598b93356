// Package api exposes the progress ledger over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/i18n"
	"github.com/Proton-105/lesson-ledger/internal/idempotency"
	"github.com/Proton-105/lesson-ledger/internal/lifecycle"
	"github.com/Proton-105/lesson-ledger/internal/middleware"
	"github.com/Proton-105/lesson-ledger/internal/progress"
	"github.com/Proton-105/lesson-ledger/internal/ratelimit"
	"github.com/Proton-105/lesson-ledger/internal/repository"
	"github.com/Proton-105/lesson-ledger/pkg/logger"
)

const (
	maxSubmissionBytes    = 64 << 10
	defaultIdempotencyTTL = 24 * time.Hour
	readinessProbeTimeout = 3 * time.Second
	contentTypeJSON       = "application/json"
	headerReplayed        = "Idempotent-Replayed"
	headerProgressSource  = "Progress-Source"
	headerRetryAfter      = "Retry-After"
	retryAfterSeconds     = "1"
)

// Leaderboard serves the ranked read model.
type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error)
}

// ProjectedProgress reads the projected copy of a user's record.
type ProjectedProgress interface {
	FindByOwner(ctx context.Context, owner solana.PublicKey) (*progress.UserProgress, error)
}

// Deps are the collaborators of the HTTP API. Only Ledger is required.
type Deps struct {
	Ledger         *progress.Ledger
	Leaderboard    Leaderboard
	Projected      ProjectedProgress
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	Guard          *ratelimit.Guard
	Probes         *lifecycle.Probes
	Translations   *i18n.Manager
	Errors         *apperrors.Handler
	Log            *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	ledger         *progress.Ledger
	leaderboard    Leaderboard
	projected      ProjectedProgress
	idempotency    idempotency.Manager
	idempotencyTTL time.Duration
	guard          *ratelimit.Guard
	probes         *lifecycle.Probes
	translations   *i18n.Manager
	errors         *apperrors.Handler
	log            *slog.Logger
}

// NewServer builds a Server from deps.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	errHandler := deps.Errors
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false)
	}

	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	probes := deps.Probes
	if probes == nil {
		probes = lifecycle.NewProbes(nil, log)
	}

	return &Server{
		ledger:         deps.Ledger,
		leaderboard:    deps.Leaderboard,
		projected:      deps.Projected,
		idempotency:    deps.Idempotency,
		idempotencyTTL: ttl,
		guard:          deps.Guard,
		probes:         probes,
		translations:   deps.Translations,
		errors:         errHandler,
		log:            log,
	}
}

// Routes returns the API mux wrapped in the standard middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	limited := middleware.RateLimit(s.guard, s.writeRateLimited, s.log)

	mux.Handle("POST /v1/transactions", limited(http.HandlerFunc(s.handleSubmit)))
	mux.Handle("GET /v1/users/{user}/address", limited(http.HandlerFunc(s.handleAddress)))
	mux.Handle("GET /v1/users/{user}/progress", limited(http.HandlerFunc(s.handleUserProgress)))
	mux.Handle("GET /v1/accounts/{address}", limited(http.HandlerFunc(s.handleAccount)))
	if s.leaderboard != nil {
		mux.Handle("GET /v1/leaderboard", limited(http.HandlerFunc(s.handleLeaderboard)))
	}
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = middleware.Metrics(h)
	h = middleware.Logging(s.log)(h)
	h = logger.Middleware(h)
	return h
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if err := s.probes.Liveness(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{"status": "ready"}
	if err := s.probes.Readiness(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "not_ready"
		body["error"] = err.Error()
	}
	body["components"] = s.probes.Status(ctx)

	writeJSON(w, status, body)
}
