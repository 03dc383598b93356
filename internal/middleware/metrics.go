package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Proton-105/lesson-ledger/pkg/metrics"
)

// Metrics reports request counts and latency per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(rec.Status()), time.Since(start))
	})
}
