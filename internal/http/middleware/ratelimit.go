package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/medici-leads/internal/ratelimit"
)

// Allower decides whether a client may proceed.
type Allower interface {
	Allow(ctx context.Context, clientKey string) bool
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// limiter's window with 429 Too Many Requests.
func RateLimit(limiter Allower, retryAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context(), ratelimit.ClientKey(r)) {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests. Please try again later."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
