package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medici-leads/pkg/logging"
)

var limiterTracer = otel.Tracer("medici.internal.ratelimit")

const (
	DefaultMax    = 5
	DefaultWindow = 300 * time.Second
)

// Limiter is a fixed-window throttle keyed by client identity.
type Limiter struct {
	store  CounterStore
	max    int
	window time.Duration
	logger *logging.Logger
}

// NewLimiter builds a limiter. Non-positive bounds fall back to 5 per 300s.
func NewLimiter(store CounterStore, max int, window time.Duration, logger *logging.Logger) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Limiter{store: store, max: max, window: window, logger: logger}
}

// Allow records a request from clientKey and reports whether it is within
// the limit. An empty key cannot be limited and is allowed. Store failures
// fail open.
func (l *Limiter) Allow(ctx context.Context, clientKey string) bool {
	if strings.TrimSpace(clientKey) == "" {
		return true
	}
	ctx, span := limiterTracer.Start(ctx, "ratelimit.allow")
	defer span.End()

	count, err := l.store.Hit(ctx, hashKey(clientKey), l.max, l.window)
	if err != nil {
		l.logger.Error("rate limit check failed", "error", err)
		span.SetAttributes(attribute.Bool("ratelimit.unavailable", true))
		return true
	}

	allowed := count <= l.max
	span.SetAttributes(
		attribute.Int("ratelimit.count", count),
		attribute.Bool("ratelimit.allowed", allowed),
	)
	if !allowed {
		l.logger.Warn("rate limit exceeded", "count", count, "max", l.max)
	}
	return allowed
}

func hashKey(clientKey string) string {
	sum := sha256.Sum256([]byte(clientKey))
	return hex.EncodeToString(sum[:16])
}

// ClientKey resolves the client address: CF-Connecting-IP, then the first
// X-Forwarded-For entry, then the connection address.
func ClientKey(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
