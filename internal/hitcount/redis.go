// ABOUTME: Redis-backed Counter shared across server instances
// ABOUTME: Uses one key per window bucket with INCR and EXPIRE in a transaction

package hitcount

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a Counter stored in Redis.
type RedisCounter struct {
	client *redis.Client
	window time.Duration
}

// NewRedisCounter connects to redisURL and verifies the connection.
func NewRedisCounter(ctx context.Context, redisURL string, window time.Duration) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisCounter{client: client, window: window}, nil
}

// Incr implements Counter.
func (r *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	k := windowKey(key, time.Now(), r.window)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", k, err)
	}
	return incr.Val(), nil
}

// Close closes the Redis connection.
func (r *RedisCounter) Close() error {
	return r.client.Close()
}

// windowKey returns the Redis key for key in the window bucket containing now.
func windowKey(key string, now time.Time, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("hitcount:%s:%d", key, now.Unix()/secs)
}
