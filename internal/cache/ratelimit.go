package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per key over a fixed window.
type RateLimiter interface {
	// Allow records one request for key and reports whether it is within the
	// configured limit.
	Allow(ctx context.Context, key string) (bool, error)
}

type rateLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewRateLimiter creates a fixed-window limiter: max requests per key per
// window.
func NewRateLimiter(client *redis.Client, max int, window time.Duration) RateLimiter {
	return &rateLimiter{
		client: client,
		max:    int64(max),
		window: window,
	}
}

func (l *rateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First hit in this window starts the clock.
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.max, nil
}
