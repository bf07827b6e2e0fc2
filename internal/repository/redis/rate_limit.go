package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-auth/internal/core/port"
)

const defaultRateLimitPrefix = "auth:ratelimit"

// RateLimitStore persists fixed-window counters in Redis. INCR is atomic,
// so two concurrent increments for the same key always observe distinct
// counts; the first increment of a window arms the TTL.
type RateLimitStore struct {
	client *redis.Client
	prefix string
}

// NewRateLimitStore constructs a store using the provided Redis client.
func NewRateLimitStore(client *redis.Client, prefix string) *RateLimitStore {
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RateLimitStore{client: client, prefix: prefix}
}

// Incr increments the window counter, starting a fresh window when none
// is active.
func (s *RateLimitStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, fmt.Errorf("window must be positive")
	}

	fullKey := s.key(key)
	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis pexpire: %w", err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl < 0 {
		// Counter exists without a TTL, likely a crash between INCR and
		// PEXPIRE. Re-arm so the key cannot live forever.
		if err := s.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis pexpire: %w", err)
		}
		ttl = window
	}

	return count, time.Now().Add(ttl), nil
}

// Get reports the current count and window reset without incrementing.
func (s *RateLimitStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	fullKey := s.key(key)

	count, err := s.client.Get(ctx, fullKey).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl < 0 {
		return count, time.Time{}, nil
	}

	return count, time.Now().Add(ttl), nil
}

// Reset clears the counter for key.
func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RateLimitStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
