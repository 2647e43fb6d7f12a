package payment

import (
	"context"
	"time"
)

// SessionItem is one display line on the hosted payment page.
type SessionItem struct {
	Name     string
	Amount   int64
	Quantity int64
}

// SessionRequest describes the payment session to open for an order.
type SessionRequest struct {
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Items          []SessionItem
}

// Session is the client-usable payment handle returned by the processor.
type Session struct {
	ID           string    `json:"id"`
	IntentID     string    `json:"intentId,omitempty"`
	ClientSecret string    `json:"clientSecret,omitempty"`
	RedirectURL  string    `json:"redirectUrl,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Open         bool      `json:"open"`
}

// Processor is the outbound payment-provider contract.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}
