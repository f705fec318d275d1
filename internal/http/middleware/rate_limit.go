package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aforo/aforo/internal/http/response"
)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int           // Max requests per window
	Window   time.Duration // Time window duration
	Prefix   string        // Redis key prefix
}

// RateLimiter caps request rates per device (falling back to client IP)
// using a fixed window counter in Redis. With no Redis client, or on a
// Redis error, it fails open so a cache outage never blocks check-ins.
type RateLimiter struct {
	rdb    *redis.Client
	config RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, config RateLimitConfig) *RateLimiter {
	if config.Prefix == "" {
		config.Prefix = "ratelimit"
	}
	return &RateLimiter{rdb: rdb, config: config}
}

var windowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.rdb == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := rl.config.Prefix + ":" + rl.keyFor(r)
			count, err := windowScript.Run(r.Context(), rl.rdb,
				[]string{key}, rl.config.Window.Milliseconds()).Int()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
			remaining := rl.config.Requests - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if count > rl.config.Requests {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window/time.Second)))
				response.RateLimit(w, "too many requests, slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) keyFor(r *http.Request) string {
	if device := DeviceFrom(r.Context()); device != "" {
		return "device:" + device
	}
	return "ip:" + getClientIP(r)
}

// getClientIP extracts the real client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
