package payment

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) ReplayGuard {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return ReplayGuard{R: client, TTL: time.Minute}
}

func TestFirstDeliveryThenDuplicate(t *testing.T) {
	guard := newGuard(t)
	ctx := context.Background()

	require.True(t, guard.FirstDelivery(ctx, "evt_1"))
	require.False(t, guard.FirstDelivery(ctx, "evt_1"), "second delivery must be flagged as replay")
	require.True(t, guard.FirstDelivery(ctx, "evt_2"), "distinct events are independent")
}

func TestForgetReleasesGuard(t *testing.T) {
	guard := newGuard(t)
	ctx := context.Background()

	require.True(t, guard.FirstDelivery(ctx, "evt_1"))
	guard.Forget(ctx, "evt_1")
	require.True(t, guard.FirstDelivery(ctx, "evt_1"), "forgotten event must process again")
}

func TestGuardDegradesWithoutRedis(t *testing.T) {
	guard := ReplayGuard{}
	require.True(t, guard.FirstDelivery(context.Background(), "evt_1"),
		"missing redis must favour processing")
}

func TestGuardIgnoresEmptyEventID(t *testing.T) {
	guard := newGuard(t)
	require.True(t, guard.FirstDelivery(context.Background(), ""))
	require.True(t, guard.FirstDelivery(context.Background(), ""))
}
