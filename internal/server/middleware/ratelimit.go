package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
)

// RateLimit caps the request rate with a shared token bucket. A limit of
// zero or less disables it.
func RateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(limit), max(burst, 1))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				e := apperrors.New(http.StatusTooManyRequests, apperrors.CodeRateLimited, "rate limit exceeded")
				writeErrorResponse(w, r.Header.Get(apperrors.RequestIDHeader), e)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
