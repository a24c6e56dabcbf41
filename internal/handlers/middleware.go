package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with the incoming X-Request-ID or a new uuid
// and stores it on the context for logging
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// RateLimiter rejects requests with 429 once the shared token bucket is empty
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewRateLimiter allows rps requests per second with the given burst
func NewRateLimiter(rps float64, burst int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Middleware wraps next with the limiter
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter.Allow() {
			l.metrics.RecordAPIError("rate_limited", r.URL.Path)
			l.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(http.StatusTooManyRequests))
			l.logger.Warn(r.Context(), "[API_RATE_LIMITED] Request rejected", logging.Fields{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			})
			w.Header().Set("Retry-After", "1")
			writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
