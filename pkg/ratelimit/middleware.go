package ratelimit

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Config holds the rate limiting knobs. Per-IP limits protect the public
// endpoints (registration, password reset, existence checks); per-user
// limits apply once a request carries valid JWT claims.
type Config struct {
	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64 // requests per second

	PerUserEnabled    bool
	PerUserCapacity   int
	PerUserRefillRate float64

	// BucketTTL controls how long idle buckets stay in memory.
	BucketTTL time.Duration
}

// DefaultConfig allows 30 requests per minute per IP and 120 per minute per
// authenticated user.
func DefaultConfig() *Config {
	return &Config{
		PerIPEnabled:    true,
		PerIPCapacity:   30,
		PerIPRefillRate: 30.0 / 60.0,

		PerUserEnabled:    true,
		PerUserCapacity:   120,
		PerUserRefillRate: 120.0 / 60.0,

		BucketTTL: 1 * time.Hour,
	}
}

// Middleware applies per-IP and per-user token bucket limits.
type Middleware struct {
	config      *Config
	ipLimiter   *RateLimiter
	userLimiter *RateLimiter
}

// NewMiddleware creates a rate limiting middleware. A nil config uses
// DefaultConfig.
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{config: config}
	if config.PerIPEnabled {
		m.ipLimiter = NewRateLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL)
	}
	if config.PerUserEnabled {
		m.userLimiter = NewRateLimiter(config.PerUserCapacity, config.PerUserRefillRate, config.BucketTTL)
	}
	return m
}

// Handler returns the middleware handler.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if m.config.PerIPEnabled && ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip")
			return
		}

		username := usernameFromClaims(r)
		if m.config.PerUserEnabled && username != "" && !m.userLimiter.Allow(username) {
			m.rateLimitExceeded(w, r, "user")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", clientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error": "Too many requests. Please try again later."}`))
}

// clientIP prefers proxy headers and falls back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func usernameFromClaims(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	if username, ok := claims["username"].(string); ok {
		return username
	}
	return ""
}
