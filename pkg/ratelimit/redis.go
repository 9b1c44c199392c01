package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/tollgate/pkg/config"
)

// incrScript increments the window counter and sets its expiry on first touch
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter keeps fixed-window counters in Redis so every instance
// shares them.
type RedisLimiter struct {
	client *redis.Client
	config Config
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, cfg Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "tollgate:rl"
	}
	return &RedisLimiter{
		client: client,
		config: cfg,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *RedisLimiter) key(tier Tier, keyID string, w window) string {
	return fmt.Sprintf("%s:%s:%s:%d", l.prefix, tier, keyID, w.start.Unix())
}

// Check counts the call and reports whether it fits in the tier's window.
// Redis failures are returned as errors; the caller must fail closed.
func (l *RedisLimiter) Check(ctx context.Context, keyID string, tier Tier) (Result, error) {
	now := l.now()
	w := l.config.window(tier, now)

	// counters outlive their window by a second
	ttl := w.length + time.Second

	count, err := incrScript.Run(ctx, l.client, []string{l.key(tier, keyID, w)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return Result{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return l.config.result(tier, w, count, now), nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.PoolTimeout = timeout + time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
