package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests per client key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config defines the window and the number of requests admitted in it.
type Config struct {
	Max    int
	Window time.Duration
}

// DefaultConfig mirrors the historical auth limits: 100 requests per 15 minutes.
func DefaultConfig() Config {
	return Config{Max: 100, Window: 15 * time.Minute}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Max <= 0 {
		c.Max = def.Max
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

func decide(cfg Config, count int, resetAt, now time.Time) Decision {
	d := Decision{
		Allowed: count <= cfg.Max,
		Limit:   cfg.Max,
		ResetAt: resetAt,
	}
	if remaining := cfg.Max - count; remaining > 0 {
		d.Remaining = remaining
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}
