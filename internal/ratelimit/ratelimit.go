package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps how many suggestions a user can send per window.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter returns a limiter that allows everything when client is nil.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow counts one attempt for userID in a fixed window. Redis errors fail
// open and are returned so the caller can log them.
func (rl *RateLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	if rl == nil || rl.client == nil || rl.limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:suggest:%d", userID)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("RateLimiter.Allow: %w", err)
	}

	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			return true, fmt.Errorf("RateLimiter.Allow: %w", err)
		}
	}

	return count <= int64(rl.limit), nil
}

// Window is the length of one counting period.
func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}
