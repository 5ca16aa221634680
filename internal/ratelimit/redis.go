package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/observability"
)

// fixedWindowScript increments the window counter and starts its expiry on the
// first hit. It returns the count and the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter shares counters across instances. When Redis fails it falls
// back to an in-process limiter instead of failing open.
type RedisLimiter struct {
	client   *redis.Client
	cfg      Config
	prefix   string
	fallback Limiter
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, cfg Config, prefix string, logger *zap.Logger, metrics *observability.Metrics) *RedisLimiter {
	cfg = cfg.normalized()
	if prefix == "" {
		prefix = "ratelimit"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client:   client,
		cfg:      cfg,
		prefix:   prefix,
		fallback: NewMemoryLimiter(cfg),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Allow counts one request for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	vals, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, l.cfg.Window.Milliseconds()).Int64Slice()
	if err == nil && len(vals) != 2 {
		err = fmt.Errorf("unexpected script reply %v", vals)
	}
	if err != nil {
		l.logger.Warn("redis rate limiter unavailable, using in-process fallback",
			zap.String("key", redisKey),
			zap.Error(err))
		l.metrics.RecordRateLimiterFallback()
		return l.fallback.Allow(ctx, key)
	}

	now := l.now()
	resetAt := now.Add(time.Duration(vals[1]) * time.Millisecond)
	return decide(l.cfg, int(vals[0]), resetAt, now), nil
}

// Reset clears the counter for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
