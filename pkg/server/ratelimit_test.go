package server

import (
	"testing"
)

func TestRateLimiterAllowsUpToPerMinute(t *testing.T) {
	rl := NewRateLimiter(3, nil)
	addr := "1.2.3.4:5555"

	for i := 0; i < 3; i++ {
		if !rl.Allow(addr) {
			t.Fatalf("request %d unexpectedly denied within the per-minute budget", i+1)
		}
	}
	if rl.Allow(addr) {
		t.Error("request exceeding the per-minute budget should be denied")
	}
}

func TestRateLimiterWhitelistBypasses(t *testing.T) {
	rl := NewRateLimiter(1, []string{"9.9.9.9"})
	addr := "9.9.9.9:1234"

	for i := 0; i < 5; i++ {
		if !rl.Allow(addr) {
			t.Fatalf("whitelisted address denied on request %d", i+1)
		}
	}
}

func TestRateLimiterTracksDistinctIPsIndependently(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	if !rl.Allow("1.1.1.1:1") {
		t.Fatal("first request from 1.1.1.1 should be allowed")
	}
	if rl.Allow("1.1.1.1:1") {
		t.Error("second request from 1.1.1.1 should be denied (budget exhausted)")
	}
	if !rl.Allow("2.2.2.2:1") {
		t.Error("a different IP must have its own, unexhausted budget")
	}
}

func TestRateLimiterZeroOrNegativeDisablesLimiting(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		if !rl.Allow("3.3.3.3:1") {
			t.Fatal("perMinute <= 0 must disable rate limiting entirely")
		}
	}
}

func TestRateLimiterHandlesAddrWithoutPort(t *testing.T) {
	rl := NewRateLimiter(2, []string{"5.5.5.5"})
	// net.SplitHostPort fails on a bare IP; Allow must fall back to
	// treating the whole string as the host rather than erroring.
	if !rl.Allow("5.5.5.5") {
		t.Error("a whitelisted bare IP (no port) should still bypass the limiter")
	}
}
