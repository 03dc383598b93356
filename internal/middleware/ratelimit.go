package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Proton-105/lesson-ledger/internal/ratelimit"
)

// RejectFunc writes the response for a throttled request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, result *ratelimit.Result)

// RateLimit rejects requests once the global limit is exhausted.
// A nil reject answers with a bare 429 and Retry-After.
func RateLimit(guard *ratelimit.Guard, reject RejectFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if reject == nil {
		reject = rejectBare
	}

	return func(next http.Handler) http.Handler {
		if guard == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := guard.AllowGlobal(r.Context())
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				log.DebugContext(r.Context(), "request throttled", slog.String("path", r.URL.Path))
				reject(w, r, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectBare(w http.ResponseWriter, _ *http.Request, result *ratelimit.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter()))
	w.WriteHeader(http.StatusTooManyRequests)
}
