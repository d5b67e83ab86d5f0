// Package ratelimit implements C4: a fixed-window counter over
// (ownerID, provider), grounded on the Shannon orchestrator's
// Incr+Expire sequence-counter idiom repurposed as a fixed-window
// request counter instead of a monotonic sequence.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func windowKey(ownerID, provider string, window time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(window.Seconds())
	return fmt.Sprintf("rate:freetier:%s:user:%s:%d", provider, ownerID, bucket)
}

type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow increments the current window's counter and reports whether
// the owner is still under limit for this provider. The key is given
// an EXPIRE only on the increment that creates it, so a quiet window
// decays on its own instead of leaking.
func (l *Limiter) Allow(ctx context.Context, ownerID, provider string) (bool, time.Duration, error) {
	now := l.now()
	key := windowKey(ownerID, provider, l.window, now)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}

	if count > int64(l.limit) {
		elapsed := time.Duration(now.Unix()%int64(l.window.Seconds())) * time.Second
		retryAfter := l.window - elapsed
		return false, retryAfter, nil
	}
	return true, 0, nil
}
