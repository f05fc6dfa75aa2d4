package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix namespaces limiter keys in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// fixedWindowScript atomically checks and increments a fixed-window
// counter. It never increments past the limit, so a rejected request does
// not extend the caller's penalty.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	if current >= limit then
		local ttl = redis.call('PTTL', key)
		if ttl < 0 then
			ttl = window_ms
		end
		return {0, current, ttl}
	end

	current = redis.call('INCR', key)
	if current == 1 then
		redis.call('PEXPIRE', key, window_ms)
	end
	local ttl = redis.call('PTTL', key)
	if ttl < 0 then
		ttl = window_ms
	end
	return {1, current, ttl}
`)

// RedisBackend counts requests in Redis so the quota holds across all
// service instances.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies connectivity within the
// caller's context deadline.
func NewRedisBackend(ctx context.Context, redisURL string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Connection pool settings
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisBackend{client: client}, nil
}

// NewRedisBackendWithClient wraps an existing client. Used by tests.
func NewRedisBackendWithClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Allow runs the fixed-window script for the given key.
func (b *RedisBackend) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	vals, err := fixedWindowScript.Run(ctx, b.client,
		[]string{rateLimitKeyPrefix + key},
		limit, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(vals))
	}

	allowed := vals[0] == 1
	current := vals[1]
	ttl := time.Duration(vals[2]) * time.Millisecond

	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Ping checks Redis connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
