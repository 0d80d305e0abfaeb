package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/store"
)

// Limit defines a request budget for an endpoint prefix.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter applies per-IP request budgets to the HTTP surface. The
// socket has its own per-session limits in the router; this guards the
// directory and stats endpoints against scraping.
type RateLimiter struct {
	limiter store.RateLimiter
	limits  map[string]Limit
	logger  zerolog.Logger
}

// NewRateLimiter creates an HTTP rate limiter backed by the given store
// (in-process or Redis, same as the router's limiter).
func NewRateLimiter(limiter store.RateLimiter, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		logger:  logger,
		limits: map[string]Limit{
			"GET /rooms":   {60, time.Minute},
			"GET /stats":   {30, time.Minute},
			"GET /healthz": {120, time.Minute},
		},
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := "http:" + RealIP(r)
		allowed, err := rl.limiter.Allow(r.Context(), key, limit.Requests, limit.Window)
		if err != nil {
			// A broken limiter must not take the read-only surface down.
			rl.logger.Warn().Err(err).Msg("rate limiter unavailable, allowing")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			rl.logger.Warn().
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *Limit {
	key := r.Method + " " + r.URL.Path
	for pattern, limit := range rl.limits {
		if strings.HasPrefix(key, pattern) {
			l := limit
			return &l
		}
	}
	return nil
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
