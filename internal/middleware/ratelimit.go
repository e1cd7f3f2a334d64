package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shortclick/shortclick/internal/ratelimit"
)

// RateLimit limits requests per client IP. A nil limiter disables it.
// Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			result, err := limiter.Allow(r.Context(), scope+":"+ip)
			if err != nil {
				logger.Error("rate limit check failed",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := int(result.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				logger.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("path", r.URL.Path),
					slog.Int("retry_after_seconds", retry),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				h.Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
