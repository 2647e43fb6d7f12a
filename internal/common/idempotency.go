package common

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idem guards mutating endpoints with client-supplied Idempotency-Key
// headers. The first request with a key claims it; duplicates inside the TTL
// get a 409 instead of a second order.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func idemRedisKey(header string) string {
	return "idem:" + Sha256Hex(header)
}

// Middleware claims the key before running the handler. Requests without the
// header pass straight through; so does everything when Redis is absent.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := idemRedisKey(header)
		claimed, err := i.R.SetNX(r.Context(), key, "locked", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !claimed {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// Re-arm the TTL even if the handler panicked mid-flight.
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
