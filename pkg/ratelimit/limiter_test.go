package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsTokensWithinBurst(t *testing.T) {
	rl := NewRateLimiter(10, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first token from a full bucket should not block: %v", err)
	}
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("second token within burst should not block: %v", err)
	}
}

func TestRateLimiterWaitRespectsCancellation(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	// Drain the only token, then the next Wait must block until refill
	// or ctx cancellation — exercise the cancellation path.
	ctx0, cancel0 := context.WithTimeout(context.Background(), time.Second)
	defer cancel0()
	if err := rl.Wait(ctx0); err != nil {
		t.Fatalf("draining the initial token failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("expected Wait to time out with an empty bucket and a short deadline")
	}
}

func TestMultiLimiterIsolatesCategories(t *testing.T) {
	ml := NewMultiLimiter()
	ml.Add("orders", 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := ml.Wait(ctx, "orders"); err != nil {
		t.Fatalf("unexpected error from a fresh bucket: %v", err)
	}

	// A category with no configured limiter is unrestricted.
	if err := ml.Wait(ctx, "unconfigured"); err != nil {
		t.Fatalf("unconfigured category should never block: %v", err)
	}
}
