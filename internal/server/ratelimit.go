package server

import (
	"net/http"
	"strconv"
	"time"

	"overlay-streamer/internal/platform/httpx"

	"github.com/go-chi/httprate"
)

// RateLimit limits each client IP to limit requests per window using a
// sliding window counter. A non-positive limit disables limiting.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			httpx.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}
