package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisBackendWithClient(client), mr
}

func TestRedisBackend_FixedWindow(t *testing.T) {
	b, _ := newMiniredisBackend(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		res, err := b.Allow(ctx, "user:1", 10, time.Minute)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 10-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, res.Remaining, 10-i)
		}
	}

	res, err := b.Allow(ctx, "user:1", 10, time.Minute)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed {
		t.Error("11th request should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
}

func TestRedisBackend_RejectionDoesNotIncrement(t *testing.T) {
	b, mr := newMiniredisBackend(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.Allow(ctx, "user:1", 3, time.Minute); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
	}

	// Hammer past the quota; the stored counter must stay at the limit.
	for i := 0; i < 5; i++ {
		res, err := b.Allow(ctx, "user:1", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if res.Allowed {
			t.Fatal("request over quota should be rejected")
		}
	}

	got, err := mr.Get("ratelimit:user:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "3" {
		t.Errorf("stored counter = %q, want %q", got, "3")
	}
}

func TestRedisBackend_WindowExpiry(t *testing.T) {
	b, mr := newMiniredisBackend(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.Allow(ctx, "user:1", 2, time.Minute); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
	}

	res, _ := b.Allow(ctx, "user:1", 2, time.Minute)
	if res.Allowed {
		t.Fatal("quota should be exhausted")
	}

	// Advance past the window; the key expires and counting restarts.
	mr.FastForward(61 * time.Second)

	res, err := b.Allow(ctx, "user:1", 2, time.Minute)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !res.Allowed {
		t.Error("request in new window should be allowed")
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", res.Remaining)
	}
}
