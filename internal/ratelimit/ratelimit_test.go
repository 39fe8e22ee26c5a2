package ratelimit

import (
	"testing"
	"time"

	"github.com/mbd888/saathi/internal/apperr"
)

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 5,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "test-ip"

	for i := 0; i < 5; i++ {
		if err := limiter.Allow(key); err != nil {
			t.Errorf("request %d should be allowed within window, got %v", i, err)
		}
	}

	err := limiter.Allow(key)
	if err == nil {
		t.Fatal("request beyond the window limit should be denied")
	}
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %v", apperr.KindOf(err))
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 3,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}

	if err := limiter.Allow("client-a"); err == nil {
		t.Error("client-a should be rate limited")
	}

	if err := limiter.Allow("client-b"); err != nil {
		t.Errorf("client-b should not be rate limited, got %v", err)
	}
}

func TestLimiterWindowRolls(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 1,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "test"

	if err := limiter.Allow(key); err != nil {
		t.Errorf("first request should be allowed, got %v", err)
	}
	if err := limiter.Allow(key); err == nil {
		t.Error("second immediate request should be denied")
	}

	limiter.mu.Lock()
	limiter.clients[key].windowStart = time.Now().Add(-time.Minute)
	limiter.mu.Unlock()

	if err := limiter.Allow(key); err != nil {
		t.Errorf("request after the window expired should be allowed, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("expected 60 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}
