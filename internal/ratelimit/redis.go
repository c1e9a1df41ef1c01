package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
)

// Counter abstracts the Redis operations used by RedisLimiter to make
// testing easier.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a concrete implementation backed by go-redis.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter constructs a new Redis-backed counter adapter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// IncrWithExpiry increments key and refreshes its expiry in one round trip.
// Keys are per window, so refreshing never extends a window.
func (c *RedisCounter) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RedisLimiter is a fixed window limiter shared by every proxy instance that
// points at the same Redis.
type RedisLimiter struct {
	counter Counter
	window  time.Duration
	max     int64
	now     func() time.Time
}

// NewRedisLimiter allows rps*window (plus burst) requests per key per window.
func NewRedisLimiter(counter Counter, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	limit := int64(math.Ceil(rps*window.Seconds())) + int64(burst)
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{counter: counter, window: window, max: limit, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	count, err := l.counter.IncrWithExpiry(ctx, fmt.Sprintf("ratelimit:%s:%d", key, bucket), l.window)
	if err != nil {
		return false, err
	}
	return count <= l.max, nil
}
