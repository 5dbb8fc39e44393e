package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client holding the feedback counters used to
// recompute click-through rates.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// IncrementImpression increments the impression counter for a targeting group.
func (r *RedisStore) IncrementImpression(groupID string) error {
	key := fmt.Sprintf("ctr:group:%s:imp", groupID)
	_, err := r.Client.Incr(r.Ctx, key).Result()
	return err
}

// IncrementClick increments the click counter for a targeting group.
func (r *RedisStore) IncrementClick(groupID string) error {
	key := fmt.Sprintf("ctr:group:%s:click", groupID)
	_, err := r.Client.Incr(r.Ctx, key).Result()
	return err
}

// GetFeedbackCounts returns the total impressions and clicks recorded for a
// targeting group. Missing keys read as zero.
func (r *RedisStore) GetFeedbackCounts(groupID string) (int64, int64) {
	impKey := fmt.Sprintf("ctr:group:%s:imp", groupID)
	clickKey := fmt.Sprintf("ctr:group:%s:click", groupID)
	imps, _ := r.Client.Get(r.Ctx, impKey).Int64()
	clicks, _ := r.Client.Get(r.Ctx, clickKey).Int64()
	return imps, clicks
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
