package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int64
	expires time.Time
}

// MemoryLimiter is a single-process fixed-window limiter
type MemoryLimiter struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	counters  map[string]*counter
	lastSweep time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		config:   cfg,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

func (l *MemoryLimiter) Check(ctx context.Context, keyID string, tier Tier) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := l.now()
	w := l.config.window(tier, now)
	key := string(tier) + ":" + keyID

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || !now.Before(c.expires) {
		c = &counter{expires: w.end()}
		l.counters[key] = c
	}
	c.count++

	return l.config.result(tier, w, c.count, now), nil
}

// sweep drops closed windows at most once a minute. Caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for key, c := range l.counters {
		if !now.Before(c.expires) {
			delete(l.counters, key)
		}
	}
}
