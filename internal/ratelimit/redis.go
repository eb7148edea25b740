package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps fixed-window counters in Redis so the quota holds
// across replicas. Each window is an INCR-ed key whose TTL is set on the
// first hit and left untouched afterwards.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (Result, error) {
	const op = "ratelimit.RedisLimiter.Allow"

	minuteKey := "ratelimit:m:" + key
	hourKey := "ratelimit:h:" + key

	pipe := l.client.Pipeline()
	minuteCount := pipe.Incr(ctx, minuteKey)
	pipe.ExpireNX(ctx, minuteKey, minuteWindow)
	hourCount := pipe.Incr(ctx, hourKey)
	pipe.ExpireNX(ctx, hourKey, hourWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("%s: failed to update counters: %w", op, err)
	}

	res := Result{Allowed: true}

	if minuteCount.Val() > int64(limit.PerMinute) {
		res.Allowed = false
		res.RetryAfter = l.windowTTL(ctx, minuteKey, minuteWindow)
	}
	if hourCount.Val() > int64(limit.PerHour) {
		res.Allowed = false
		if d := l.windowTTL(ctx, hourKey, hourWindow); d > res.RetryAfter {
			res.RetryAfter = d
		}
	}

	return res, nil
}

// windowTTL reads the remaining window duration. On a TTL read failure the
// full window size is reported, which only errs on the patient side.
func (l *RedisLimiter) windowTTL(ctx context.Context, key string, size time.Duration) time.Duration {
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return size
	}
	return ttl
}
