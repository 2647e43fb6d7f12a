package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard short-circuits duplicate webhook deliveries by event id before
// any database work. It is advisory only: the conditional status updates
// remain the source of truth, so a Redis outage degrades to extra no-op
// transactions rather than double side effects.
type ReplayGuard struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

// FirstDelivery reports whether this event id has not been seen within the
// guard window. Errors are swallowed in favour of processing the event.
func (g ReplayGuard) FirstDelivery(ctx context.Context, eventID string) bool {
	if g.R == nil || eventID == "" {
		return true
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ok, err := g.R.SetNX(ctx, g.key(eventID), "1", ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// Forget releases the guard so a failed delivery can be retried by the
// processor without waiting out the TTL.
func (g ReplayGuard) Forget(ctx context.Context, eventID string) {
	if g.R == nil || eventID == "" {
		return
	}
	_ = g.R.Del(ctx, g.key(eventID)).Err()
}

func (g ReplayGuard) key(eventID string) string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "webhook:stripe"
	}
	return fmt.Sprintf("%s:event:%s", prefix, eventID)
}
