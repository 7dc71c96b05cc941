package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// Limiter decides whether a request identified by key may proceed. retryAfter
// is only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	cfg     RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{cfg: cfg, now: time.Now, buckets: make(map[string]*tokenBucket)}
}

func (l *MemoryLimiter) bucket(key string) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.cfg.BurstSize), lastRefill: l.now()}
		l.buckets[key] = b
	}
	return b
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	b := l.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.tokens = math.Min(float64(l.cfg.BurstSize), b.tokens+now.Sub(b.lastRefill).Seconds()*l.cfg.RequestsPerSecond)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, time.Second, nil
	}
	wait := time.Duration((1 - b.tokens) / l.cfg.RequestsPerSecond * float64(time.Second))
	return false, wait, nil
}

func rateLimitKey(c echo.Context) string {
	key := c.RealIP()
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		key = tid + ":" + key
	}
	return key
}

// RateLimit rejects requests over the configured rate with 429. If the
// limiter itself fails the request is let through and the failure logged.
func RateLimit(cfg RateLimitConfig, limiter Limiter, logger zerolog.Logger) echo.MiddlewareFunc {
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)

			allowed, retryAfter, err := limiter.Allow(c.Request().Context(), rateLimitKey(c))
			if err != nil {
				logger.Warn().Err(err).Msg("rate limiter unavailable")
				return next(c)
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
