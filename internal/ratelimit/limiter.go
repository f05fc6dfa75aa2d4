// Package ratelimit bounds per-caller request rates with a fixed window.
// Counters live in Redis when the backend is reachable at startup, and in
// process memory otherwise.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Mode is the limiter's committed backend state.
type Mode string

const (
	// ModeDistributed means counters are shared across instances via Redis.
	ModeDistributed Mode = "distributed"
	// ModeLocalFallback means counters are process-local. The effective
	// quota scales with the number of running instances; this is an
	// accepted degradation, not a bug.
	ModeLocalFallback Mode = "local_fallback"
)

// Result is the outcome of one increment-and-check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Backend is a per-key fixed-window counter.
// Allow must be atomic per key: two concurrent calls at the quota boundary
// must not both be admitted.
type Backend interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter enforces a per-caller quota. The backend is chosen once at
// startup by probing Redis with a bounded timeout; once the limiter has
// fallen back to local counters it never returns to the distributed
// backend for the process lifetime.
type Limiter struct {
	mode    Mode
	backend Backend
	local   *LocalBackend
	redis   *RedisBackend

	limit  int
	window time.Duration
	logger *slog.Logger
}

// New probes the Redis backend and commits the limiter's mode.
// A probe failure or timeout commits to local fallback, never to
// "no limiting".
func New(ctx context.Context, redisURL string, limit int, window, probeTimeout time.Duration, logger *slog.Logger) *Limiter {
	l := &Limiter{
		mode:   ModeLocalFallback,
		local:  NewLocalBackend(),
		limit:  limit,
		window: window,
		logger: logger,
	}
	l.backend = l.local

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	rb, err := NewRedisBackend(probeCtx, redisURL)
	if err != nil {
		logger.Warn("rate limiter falling back to process-local counters",
			slog.String("error", err.Error()),
		)
		return l
	}

	l.mode = ModeDistributed
	l.redis = rb
	l.backend = rb
	logger.Info("rate limiter using distributed backend")
	return l
}

// Allow performs an atomic increment-and-check for the given caller key.
// In distributed mode a backend error is absorbed by counting locally for
// that request; the committed mode does not change, and limiting is never
// disabled.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	res, err := l.backend.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		l.logger.Warn("rate limit backend error, counting locally",
			slog.String("error", err.Error()),
		)
		return l.local.Allow(ctx, key, l.limit, l.window)
	}
	return res, nil
}

// Mode reports the committed backend mode for observability.
// It never exposes connection details.
func (l *Limiter) Mode() Mode {
	return l.mode
}

// Limit returns the configured quota per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Ping checks backend connectivity. In local-fallback mode it always
// succeeds.
func (l *Limiter) Ping(ctx context.Context) error {
	if l.mode == ModeDistributed {
		return l.redis.Ping(ctx)
	}
	return nil
}

// Close releases backend resources.
func (l *Limiter) Close() error {
	if l.redis != nil {
		return l.redis.Close()
	}
	return nil
}
