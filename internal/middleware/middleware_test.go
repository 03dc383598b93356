package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/lesson-ledger/internal/ratelimit"
	"github.com/Proton-105/lesson-ledger/pkg/config"
)

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/v1/leaderboard"`)
}

func TestMetrics_PassesThrough(t *testing.T) {
	h := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestRateLimit_RejectsOverGlobalLimit(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Global:    config.RateLimitRule{Limit: 1, Window: "1m"},
		PerSigner: config.RateLimitRule{Limit: 1, Window: "1m"},
	})
	guard := ratelimit.NewGuard(ratelimit.NewMemoryLimiter(nil), rules, nil)

	h := RateLimit(guard, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRateLimit_DelegatesRejection(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Global: config.RateLimitRule{Limit: 0, Window: "1m"},
	})
	guard := ratelimit.NewGuard(ratelimit.NewMemoryLimiter(nil), rules, nil)

	var rejected *ratelimit.Result
	reject := func(w http.ResponseWriter, r *http.Request, result *ratelimit.Result) {
		rejected = result
		w.WriteHeader(http.StatusTooManyRequests)
	}
	h := RateLimit(guard, reject, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run once the limit is exhausted")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/transactions", nil))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	if assert.NotNil(t, rejected) {
		assert.False(t, rejected.Allowed)
	}
}
