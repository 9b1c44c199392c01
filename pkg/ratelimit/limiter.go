package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Tier selects which ceiling applies to a caller
type Tier string

const (
	// TierDemo is the shared sandbox identity
	TierDemo Tier = "demo"
	// TierFree is a key-backed caller with no balance
	TierFree Tier = "free"
	// TierPaid is a key-backed caller with a positive balance
	TierPaid Tier = "paid"
)

// Result is the outcome of a single check. A denial is a Result with
// Allowed=false, not an error.
type Result struct {
	Allowed           bool
	Remaining         int
	Limit             int
	RequestsPerSecond int
	RetryAfter        time.Duration
	Message           string
}

// Limiter counts calls per key and tier.
// Check returns an error only when the counter store is unavailable.
type Limiter interface {
	Check(ctx context.Context, keyID string, tier Tier) (Result, error)
}

// Config holds the per-tier ceilings
type Config struct {
	DemoDailyLimit        int
	FreeDailyLimit        int
	PaidRequestsPerSecond int
	// DailyRequestsPerSecond is reported to daily-quota callers; it is not enforced
	DailyRequestsPerSecond int
}

// DefaultConfig returns 100/day for demo and free, 10/s for paid
func DefaultConfig() Config {
	return Config{
		DemoDailyLimit:         100,
		FreeDailyLimit:         100,
		PaidRequestsPerSecond:  10,
		DailyRequestsPerSecond: 1,
	}
}

// window describes the fixed window a tier is counted in
type window struct {
	limit  int
	start  time.Time
	length time.Duration
	rps    int
}

func (w window) end() time.Time {
	return w.start.Add(w.length)
}

func (c Config) window(tier Tier, now time.Time) window {
	now = now.UTC()
	switch tier {
	case TierPaid:
		return window{
			limit:  c.PaidRequestsPerSecond,
			start:  now.Truncate(time.Second),
			length: time.Second,
			rps:    c.PaidRequestsPerSecond,
		}
	case TierDemo:
		return c.daily(c.DemoDailyLimit, now)
	default:
		return c.daily(c.FreeDailyLimit, now)
	}
}

func (c Config) daily(limit int, now time.Time) window {
	return window{
		limit:  limit,
		start:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		length: 24 * time.Hour,
		rps:    c.DailyRequestsPerSecond,
	}
}

// result turns a post-increment count into a Result
func (c Config) result(tier Tier, w window, count int64, now time.Time) Result {
	res := Result{
		Allowed:           count <= int64(w.limit),
		Limit:             w.limit,
		RequestsPerSecond: w.rps,
	}
	if remaining := int64(w.limit) - count; remaining > 0 {
		res.Remaining = int(remaining)
	}
	if !res.Allowed {
		res.RetryAfter = w.end().Sub(now)
		res.Message = denialMessage(tier, w.limit)
	}
	return res
}

func denialMessage(tier Tier, limit int) string {
	switch tier {
	case TierPaid:
		return fmt.Sprintf("Rate limit exceeded: %d requests per second", limit)
	case TierDemo:
		return fmt.Sprintf("Demo limit of %d requests per day reached. Create an API key to continue", limit)
	default:
		return fmt.Sprintf("Free tier limit of %d requests per day reached. Add credits to continue", limit)
	}
}
