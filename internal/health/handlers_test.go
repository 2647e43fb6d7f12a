package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/papercrane/storefront/internal/health"
)

type fakeDeps struct {
	db    error
	redis error
}

func (f fakeDeps) PingDB(context.Context, time.Duration) error    { return f.db }
func (f fakeDeps) PingRedis(context.Context, time.Duration) error { return f.redis }

func probeReady(t *testing.T, h health.Handler) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body map[string]string
	if rr.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode readiness body: %v", err)
		}
	}
	return rr, body
}

func TestLiveAlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("liveness: want 200, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("liveness body: want ok, got %q", got)
	}
}

func TestReadyAllDependenciesUp(t *testing.T) {
	h := health.Handler{Checker: fakeDeps{}, DBTimeout: 25 * time.Millisecond, RedisTimeout: 25 * time.Millisecond}

	rr, body := probeReady(t, h)
	if rr.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rr.Code)
	}
	if body["db"] != "ok" {
		t.Fatalf("db status: want ok, got %q", body["db"])
	}
	if body["redis"] != "ok" {
		t.Fatalf("redis status: want ok, got %q", body["redis"])
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	h := health.Handler{Checker: fakeDeps{redis: errors.New("connection refused")}}

	rr, body := probeReady(t, h)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rr.Code)
	}
	if body["db"] != "ok" {
		t.Fatalf("db status: want ok, got %q", body["db"])
	}
	if !strings.Contains(body["redis"], "connection refused") {
		t.Fatalf("redis status should carry the ping error, got %q", body["redis"])
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	rr, _ := probeReady(t, health.Handler{})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 when no checker is wired, got %d", rr.Code)
	}
}
