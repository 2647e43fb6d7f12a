package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/papercrane/storefront/internal/resilience"
)

func reportN(ctx context.Context, b *resilience.Breaker, n int, success bool) {
	for i := 0; i < n; i++ {
		b.Report(ctx, success)
	}
}

func TestBreakerOpensAfterFailureRun(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(3, 0.5, time.Minute).WithTarget("stripe")

	// Three straight failures trips the breaker: calls to the payment
	// provider should be refused until the cool-off elapses.
	for i := 0; i < 3; i++ {
		require.True(t, b.Allow(ctx), "call %d should pass while closed", i)
		b.Report(ctx, false)
	}
	require.False(t, b.Allow(ctx))
	require.False(t, b.Allow(ctx), "stays open until cool-off")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(1, 0.5, 30*time.Millisecond)

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.False(t, b.Allow(ctx))

	time.Sleep(40 * time.Millisecond)

	// Probe admitted after cool-off; a success closes the circuit again.
	require.True(t, b.Allow(ctx))
	b.Report(ctx, true)
	require.True(t, b.Allow(ctx))
	require.True(t, b.Allow(ctx))
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(1, 0.5, 20*time.Millisecond)

	b.Allow(ctx)
	b.Report(ctx, false)
	require.False(t, b.Allow(ctx))

	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow(ctx), "probe should be admitted")
	b.Report(ctx, false)
	require.False(t, b.Allow(ctx), "failed probe reopens the circuit")
}

func TestBreakerMixedTrafficBelowRatio(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(3, 0.9, time.Minute)

	// A few failures mixed into mostly healthy traffic must not trip a
	// 90% ratio breaker.
	reportN(ctx, b, 20, true)
	reportN(ctx, b, 2, false)
	require.True(t, b.Allow(ctx))
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 50 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 0, 0))
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, 2*base, resilience.Backoff(base, 2, 0))
	require.Equal(t, 8*base, resilience.Backoff(base, 4, 0))
}

func TestBackoffJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	want := 4 * base // attempt 3

	for i := 0; i < 50; i++ {
		d := resilience.Backoff(base, 3, 0.25)
		require.GreaterOrEqual(t, d, want-want/4)
		require.LessOrEqual(t, d, want+want/4)
	}
}
