package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds how large the counter map may grow before expired
// windows are swept.
const pruneThreshold = 10000

// LocalBackend counts requests in process memory. Counters are lost on
// restart and not shared between instances.
type LocalBackend struct {
	mu      sync.Mutex
	windows map[string]*window

	// now is injectable for tests.
	now func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewLocalBackend creates an in-process fixed-window counter.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow performs an atomic increment-and-check under a single lock.
func (b *LocalBackend) Allow(_ context.Context, key string, limit int, windowLen time.Duration) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	w, ok := b.windows[key]
	if !ok || now.Sub(w.start) >= windowLen {
		if len(b.windows) >= pruneThreshold {
			b.prune(now, windowLen)
		}
		w = &window{start: now}
		b.windows[key] = w
	}

	resetAt := w.start.Add(windowLen)

	if w.count >= limit {
		return &Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	w.count++
	return &Result{
		Allowed:   true,
		Remaining: limit - w.count,
		ResetAt:   resetAt,
	}, nil
}

// prune removes expired windows. Caller must hold the lock.
func (b *LocalBackend) prune(now time.Time, windowLen time.Duration) {
	for key, w := range b.windows {
		if now.Sub(w.start) >= windowLen {
			delete(b.windows, key)
		}
	}
}
