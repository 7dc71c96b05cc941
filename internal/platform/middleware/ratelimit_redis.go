package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests per key in fixed one-second windows shared by
// every replica. The window admits RequestsPerSecond plus BurstSize requests.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, cfg RateLimitConfig) *RedisLimiter {
	limit := int64(math.Ceil(cfg.RequestsPerSecond)) + int64(cfg.BurstSize)
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: time.Second,
		prefix: "medisched:ratelimit:",
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	slot := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, slot.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis rate limit: %w", err)
	}

	if incr.Val() > l.limit {
		return false, slot.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}

// NewRedisClient parses url (redis://...) and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
