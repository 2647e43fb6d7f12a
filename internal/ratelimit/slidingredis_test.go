package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAllowCountsWithinWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := Limiter{Client: client, Prefix: "rl:"}
	ctx := context.Background()

	const max = 2
	window := 2 * time.Second

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "u:abc", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("arrival %d should be allowed", i+1)
		}
		if remaining != max-(i+1) {
			t.Fatalf("unexpected remaining %d after arrival %d", remaining, i+1)
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "u:abc", window, max)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("expected rejection with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
	}

	mr.FastForward(window)
	allowed, _, _, err = limiter.Allow(ctx, "u:abc", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("window expiry should admit new arrivals")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := Limiter{Client: client, Prefix: "rl:"}
	ctx := context.Background()

	if allowed, _, _, _ := limiter.Allow(ctx, "u:one", time.Minute, 1); !allowed {
		t.Fatal("first key should be allowed")
	}
	if allowed, _, _, _ := limiter.Allow(ctx, "u:one", time.Minute, 1); allowed {
		t.Fatal("first key should now be limited")
	}
	if allowed, _, _, _ := limiter.Allow(ctx, "u:two", time.Minute, 1); !allowed {
		t.Fatal("second key must not share the first key's budget")
	}
}

func TestAllowDisabledWithoutClientOrLimit(t *testing.T) {
	ctx := context.Background()

	if allowed, _, _, err := (Limiter{}).Allow(ctx, "u:abc", time.Minute, 5); err != nil || !allowed {
		t.Fatalf("nil client must fail open, got allowed=%v err=%v", allowed, err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := Limiter{Client: client}
	if allowed, _, _, err := limiter.Allow(ctx, "u:abc", time.Minute, 0); err != nil || !allowed {
		t.Fatalf("zero max disables the limiter, got allowed=%v err=%v", allowed, err)
	}
}
