package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newLoginLimiter(t *testing.T, addr string, limit int) *FixedWindowLimiter {
	t.Helper()
	limiter, err := NewRedisFixedWindowLimiter(addr, "", "eeglab:ratelimit:login", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter
}

func TestLoginAttemptsWithinQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newLoginLimiter(t, mr.Addr(), 2)

	key := "/api/auth/login|198.51.100.7"
	if !limiter.Allow(key) || !limiter.Allow(key) {
		t.Fatal("attempts within quota must pass")
	}
	if limiter.Allow(key) {
		t.Fatal("third attempt in the window must be blocked")
	}
	if !limiter.Allow("/api/auth/login|198.51.100.8") {
		t.Fatal("a different caller must have its own window")
	}
}

func TestLimiterFailsClosedWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newLoginLimiter(t, mr.Addr(), 5)

	mr.Close()
	if limiter.Allow("/api/auth/login|198.51.100.7") {
		t.Fatal("redis errors must block the attempt")
	}
}

func TestLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "eeglab:ratelimit:login", 1, time.Minute)
	if err == nil || limiter != nil {
		t.Fatal("expected constructor error for empty redis addr")
	}
}
