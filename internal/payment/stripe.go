package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// MetadataOrderID is the session metadata key carrying our order reference.
// The webhook handler falls back to it when a session lookup misses.
const MetadataOrderID = "order_id"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures the Stripe processor.
type StripeConfig struct {
	APIKey string
	// HTTPClient lets callers route Stripe traffic through the resilience
	// wrapper. Optional.
	HTTPClient *http.Client
	Sessions   stripeSessionAPI
	Clock      func() time.Time
	// SessionTTL bounds how long a hosted checkout session stays payable.
	SessionTTL time.Duration
}

// StripeProcessor implements Processor against Stripe Checkout.
type StripeProcessor struct {
	sessions   stripeSessionAPI
	clock      func() time.Time
	sessionTTL time.Duration
}

// NewStripeProcessor constructs the processor, wiring the optional HTTP
// client into the Stripe backends.
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	sessions := cfg.Sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		var backends *stripe.Backends
		if cfg.HTTPClient != nil {
			backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{HTTPClient: cfg.HTTPClient})
			backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
		}
		sc := client.New(apiKey, backends)
		sessions = sc.CheckoutSessions
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := cfg.SessionTTL
	if ttl < 30*time.Minute {
		// Stripe rejects expirations under half an hour.
		ttl = 30 * time.Minute
	}
	return &StripeProcessor{sessions: sessions, clock: clock, sessionTTL: ttl}, nil
}

// CreateSession opens a hosted checkout session for the order.
func (p *StripeProcessor) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if p == nil || p.sessions == nil {
		return Session{}, errors.New("stripe: processor not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		Metadata: map[string]string{
			MetadataOrderID: req.OrderID,
		},
	}
	params.Context = ctx
	params.ExpiresAt = stripe.Int64(p.clock().Add(p.sessionTTL).Unix())
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: map[string]string{MetadataOrderID: req.OrderID},
	}

	currency := strings.ToLower(req.Currency)
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	if len(lineItems) == 0 {
		name := req.OrderNumber
		if name == "" {
			name = "Order"
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		})
	}
	params.LineItems = lineItems

	session, err := p.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return p.toSession(session), nil
}

// GetSession retrieves a previously opened session.
func (p *StripeProcessor) GetSession(ctx context.Context, id string) (Session, error) {
	if p == nil || p.sessions == nil {
		return Session{}, errors.New("stripe: processor not configured")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := p.sessions.Get(id, params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return p.toSession(session), nil
}

func (p *StripeProcessor) toSession(session *stripe.CheckoutSession) Session {
	if session == nil {
		return Session{}
	}
	out := Session{
		ID:           session.ID,
		ClientSecret: session.ClientSecret,
		RedirectURL:  session.URL,
	}
	if session.PaymentIntent != nil {
		out.IntentID = session.PaymentIntent.ID
	}
	if session.ExpiresAt != 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	} else {
		out.ExpiresAt = p.clock().Add(p.sessionTTL).UTC()
	}
	out.Open = session.Status == stripe.CheckoutSessionStatusOpen && p.clock().Before(out.ExpiresAt)
	return out
}
