package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"FeedCurator/internal/ports"
)

// usageTTL outlives the UTC day the counter belongs to.
const usageTTL = 48 * time.Hour

// RedisUsageStore keeps daily call counters as expiring Redis integers.
type RedisUsageStore struct {
	client *redis.Client
	prefix string
}

var _ ports.UsageStore = (*RedisUsageStore)(nil)

// NewRedisUsageStore wraps an existing client. Keys are namespaced by prefix.
func NewRedisUsageStore(client *redis.Client, prefix string) *RedisUsageStore {
	if prefix == "" {
		prefix = "feedcurator"
	}
	return &RedisUsageStore{client: client, prefix: prefix}
}

// Usage returns the counter for the given day, zero when the key is absent.
func (s *RedisUsageStore) Usage(ctx context.Context, userID, platform, date string) (int, error) {
	used, err := s.client.Get(ctx, s.key(userID, platform, date)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get usage: %w", err)
	}
	return used, nil
}

// Increment atomically adds one call and refreshes the expiry.
func (s *RedisUsageStore) Increment(ctx context.Context, userID, platform, date string) error {
	key := s.key(userID, platform, date)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, usageTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis increment usage: %w", err)
	}
	return nil
}

func (s *RedisUsageStore) key(userID, platform, date string) string {
	return fmt.Sprintf("%s:usage:%s:%s:%s", s.prefix, userID, platform, date)
}
