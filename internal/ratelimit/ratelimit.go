// Package ratelimit provides a fixed-window rate limiter and Gin middleware
// for the credit engine's HTTP API.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/saathi/internal/apperr"
	"github.com/mbd888/saathi/internal/metrics"
)

// Config configures rate limiting (spec §5: fixed 1-minute window per principal).
type Config struct {
	// RequestsPerMinute is the max requests per principal per window.
	RequestsPerMinute int
	// CleanupInterval is how often stale windows are purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   time.Minute,
	}
}

// window tracks the request count for a principal within the current
// fixed 1-minute bucket.
type window struct {
	count       int
	windowStart time.Time
}

// Limiter is a fixed 1-minute sliding window rate limiter keyed by
// principal (user ID, wallet address, or client IP). Unlike a token
// bucket, the count resets at windowStart+1m rather than leaking
// continuously — simpler to reason about for the spec's "N requests per
// principal per minute" requirement.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]*window
	stop    chan struct{}
}

// New creates a new rate limiter and starts its cleanup goroutine.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * time.Minute)
			for key, w := range l.clients {
				if w.windowStart.Before(cutoff) {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow reports whether a request from key is allowed under the default
// per-minute limit, returning a *apperr.Error of KindRateLimited if not.
func (l *Limiter) Allow(key string) error {
	return l.AllowWithLimit(key, l.cfg.RequestsPerMinute)
}

// AllowWithLimit checks a request against a custom requests-per-minute
// limit, rolling the window forward when it has expired.
func (l *Limiter) AllowWithLimit(key string, rpm int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.clients[key]

	if !exists || now.Sub(w.windowStart) >= time.Minute {
		l.clients[key] = &window{count: 1, windowStart: now}
		return nil
	}

	if w.count >= rpm {
		return apperr.RateLimited(60)
	}

	w.count++
	return nil
}

// Middleware returns a Gin middleware that rate limits by principal,
// falling back to the remote IP when no principal has been established
// by auth middleware yet. Health and readiness endpoints are exempt.
func (l *Limiter) Middleware(principalKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/health/live" || path == "/health/ready" {
			c.Next()
			return
		}

		key := l.principalOrIP(c, principalKey)

		if err := l.Allow(key); err != nil {
			metrics.RateLimitRejectionsTotal.Inc()
			ae, _ := err.(*apperr.Error)
			retryAfter := ae.Detail
			c.Header("Retry-After", retryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "too many requests, please slow down",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (l *Limiter) principalOrIP(c *gin.Context, principalKey string) string {
	if v, ok := c.Get(principalKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return "principal:" + s
		}
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil || host == "" {
		host = c.Request.RemoteAddr
	}
	return "ip:" + host
}
