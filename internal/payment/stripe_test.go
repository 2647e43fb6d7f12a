package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeSessions struct {
	lastNew *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.lastNew = params
	return f.session, nil
}

func (f *fakeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.session, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestCreateSessionAppliesConfiguredTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSessions{session: &stripe.CheckoutSession{ID: "cs_1"}}
	p, err := NewStripeProcessor(StripeConfig{
		Sessions:   api,
		Clock:      fixedClock(now),
		SessionTTL: 45 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.CreateSession(context.Background(), SessionRequest{
		OrderID:  "order-1",
		Amount:   5000,
		Currency: "USD",
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if api.lastNew == nil || api.lastNew.ExpiresAt == nil {
		t.Fatal("expected session expiry to be set")
	}
	want := now.Add(45 * time.Minute).Unix()
	if *api.lastNew.ExpiresAt != want {
		t.Fatalf("expected expiry %d, got %d", want, *api.lastNew.ExpiresAt)
	}
}

func TestSessionTTLFloorsAtStripeMinimum(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSessions{session: &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusOpen}}
	p, err := NewStripeProcessor(StripeConfig{
		Sessions:   api,
		Clock:      fixedClock(now),
		SessionTTL: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The processor refuses sub-30m expirations, and a session response
	// without its own expiry inherits the effective TTL.
	got, err := p.GetSession(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if want := now.Add(30 * time.Minute).UTC(); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expected fallback expiry %v, got %v", want, got.ExpiresAt)
	}
	if !got.Open {
		t.Fatal("open session within its window should report open")
	}
}
