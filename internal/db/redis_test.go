package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis spins up an in-memory Redis and a store pointed at it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(store.Close)
	return s, store
}

func TestIncrementImpression(t *testing.T) {
	s, store := setupTestRedis(t)

	for i := 0; i < 3; i++ {
		if err := store.IncrementImpression("tg-1"); err != nil {
			t.Fatalf("IncrementImpression: %v", err)
		}
	}

	got, err := s.Get("ctr:group:tg-1:imp")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	if got != "3" {
		t.Errorf("impression counter = %q, want 3", got)
	}
}

func TestIncrementClick(t *testing.T) {
	s, store := setupTestRedis(t)

	if err := store.IncrementClick("tg-1"); err != nil {
		t.Fatalf("IncrementClick: %v", err)
	}

	got, err := s.Get("ctr:group:tg-1:click")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	if got != "1" {
		t.Errorf("click counter = %q, want 1", got)
	}
}

func TestGetFeedbackCounts(t *testing.T) {
	_, store := setupTestRedis(t)

	for i := 0; i < 5; i++ {
		if err := store.IncrementImpression("tg-1"); err != nil {
			t.Fatalf("IncrementImpression: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := store.IncrementClick("tg-1"); err != nil {
			t.Fatalf("IncrementClick: %v", err)
		}
	}

	imps, clicks := store.GetFeedbackCounts("tg-1")
	if imps != 5 || clicks != 2 {
		t.Errorf("counts = (%d, %d), want (5, 2)", imps, clicks)
	}

	// A group with no recorded feedback reads as zero.
	imps, clicks = store.GetFeedbackCounts("tg-unknown")
	if imps != 0 || clicks != 0 {
		t.Errorf("counts for untouched group = (%d, %d), want zeros", imps, clicks)
	}
}

func TestCountersAreScopedPerGroup(t *testing.T) {
	_, store := setupTestRedis(t)

	if err := store.IncrementImpression("tg-1"); err != nil {
		t.Fatalf("IncrementImpression: %v", err)
	}
	if err := store.IncrementImpression("tg-2"); err != nil {
		t.Fatalf("IncrementImpression: %v", err)
	}
	if err := store.IncrementClick("tg-2"); err != nil {
		t.Fatalf("IncrementClick: %v", err)
	}

	imps, clicks := store.GetFeedbackCounts("tg-1")
	if imps != 1 || clicks != 0 {
		t.Errorf("tg-1 counts = (%d, %d), want (1, 0)", imps, clicks)
	}
	imps, clicks = store.GetFeedbackCounts("tg-2")
	if imps != 1 || clicks != 1 {
		t.Errorf("tg-2 counts = (%d, %d), want (1, 1)", imps, clicks)
	}
}
