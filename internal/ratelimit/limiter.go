package ratelimit

import (
	"fmt"
	"sync"

	"github.com/patrickwarner/adtarget/internal/observability"
)

// MarketplaceLimiter rate limits ad selection traffic per marketplace.
//
// Each marketplace gets its own token bucket, created lazily on first
// access, so one marketplace's burst cannot starve the others.
type MarketplaceLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

// Config holds the rate limiting configuration.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewMarketplaceLimiter creates a limiter with the given configuration.
func NewMarketplaceLimiter(config Config, metrics observability.MetricsRegistry) *MarketplaceLimiter {
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &MarketplaceLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow reports whether a request for the given marketplace should proceed.
// When rate limiting is disabled it always returns true.
func (ml *MarketplaceLimiter) Allow(marketplaceID string) bool {
	if !ml.config.Enabled {
		return true
	}

	ml.metrics.IncrementRateLimitRequests(marketplaceID)

	ml.mu.RLock()
	bucket, exists := ml.buckets[marketplaceID]
	ml.mu.RUnlock()

	if !exists {
		ml.mu.Lock()
		bucket, exists = ml.buckets[marketplaceID]
		if !exists {
			bucket = NewTokenBucket(ml.config.Capacity, ml.config.RefillRate)
			ml.buckets[marketplaceID] = bucket
		}
		ml.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		ml.metrics.IncrementRateLimitHits(marketplaceID)
	}
	return allowed
}

// Stats returns a snapshot of rate limiting activity per marketplace.
func (ml *MarketplaceLimiter) Stats() map[string]MarketplaceStats {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	stats := make(map[string]MarketplaceStats, len(ml.buckets))
	for marketplaceID, bucket := range ml.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[marketplaceID] = MarketplaceStats{
			MarketplaceID: marketplaceID,
			Hits:          hits,
			Total:         total,
			HitRate:       hitRate,
		}
	}
	return stats
}

// MarketplaceStats describes rate limiting activity for one marketplace.
type MarketplaceStats struct {
	MarketplaceID string  `json:"marketplace_id"`
	Hits          int64   `json:"hits"`
	Total         int64   `json:"total"`
	HitRate       float64 `json:"hit_rate"`
}

func (ms MarketplaceStats) String() string {
	return fmt.Sprintf("marketplace %s: %d/%d hits (%.2f%%)",
		ms.MarketplaceID, ms.Hits, ms.Total, ms.HitRate*100)
}
