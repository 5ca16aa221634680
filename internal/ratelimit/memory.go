package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps fixed-window counters in process. Each key has its own
// lock so unrelated clients only share the map lookup.
type MemoryLimiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	// set by Cleanup once the bucket left the map
	evicted bool
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(cfg Config, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		cfg:     cfg.normalized(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request for key. Rejected requests are not counted.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	for {
		if d, ok := l.take(l.bucket(key)); ok {
			return d, nil
		}
	}
}

// take counts against b. It reports false when Cleanup evicted b between the
// map lookup and the lock, so the caller retries with the live bucket.
func (l *MemoryLimiter) take(b *bucket) (Decision, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.evicted {
		return Decision{}, false
	}

	now := l.now()
	if b.windowStart.IsZero() || !now.Before(b.windowStart.Add(l.cfg.Window)) {
		b.windowStart = now
		b.count = 0
	}
	resetAt := b.windowStart.Add(l.cfg.Window)

	if b.count >= l.cfg.Max {
		return decide(l.cfg, l.cfg.Max+1, resetAt, now), true
	}
	b.count++
	return decide(l.cfg, b.count, resetAt, now), true
}

func (l *MemoryLimiter) bucket(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

// Cleanup removes buckets whose window ended.
func (l *MemoryLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		if !now.Before(b.windowStart.Add(l.cfg.Window)) {
			b.evicted = true
			delete(l.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// StartCleanup starts a background goroutine to cleanup old buckets.
func (l *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
