package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketAllow(t *testing.T) {
	bucket := NewTokenBucket(5, 1) // 5 tokens, refill 1 per second

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	if bucket.Allow() {
		t.Error("6th request should be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	bucket := NewTokenBucket(2, 10) // 2 tokens, refill 10 per second

	bucket.Allow()
	bucket.Allow()
	if bucket.Allow() {
		t.Error("exhausted bucket should block")
	}

	// 200ms at 10 tokens/sec refills 2 tokens.
	time.Sleep(200 * time.Millisecond)
	if !bucket.Allow() {
		t.Error("request should be allowed after refill")
	}
}

func TestMarketplaceLimiterIsolation(t *testing.T) {
	limiter := NewMarketplaceLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, nil)

	if !limiter.Allow("mk-us") {
		t.Error("first mk-us request should be allowed")
	}
	if limiter.Allow("mk-us") {
		t.Error("second mk-us request should be blocked")
	}
	// A different marketplace has its own bucket.
	if !limiter.Allow("mk-de") {
		t.Error("mk-de should be unaffected by mk-us exhaustion")
	}

	stats := limiter.Stats()
	if s := stats["mk-us"]; s.Hits != 1 || s.Total != 2 {
		t.Errorf("mk-us stats = %+v", s)
	}
	if s := stats["mk-de"]; s.Hits != 0 || s.Total != 1 {
		t.Errorf("mk-de stats = %+v", s)
	}
}

func TestMarketplaceLimiterDisabled(t *testing.T) {
	limiter := NewMarketplaceLimiter(Config{Capacity: 0, RefillRate: 0, Enabled: false}, nil)

	for i := 0; i < 100; i++ {
		if !limiter.Allow("mk-us") {
			t.Fatal("disabled limiter must always allow")
		}
	}
}
