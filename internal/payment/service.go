package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/papercrane/storefront/internal/checkout"
	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/store"
)

// Querier captures the database methods used by the session service.
type Querier interface {
	GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (store.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	AttachPaymentSession(ctx context.Context, arg store.AttachSessionParams) (bool, error)
	ReplacePaymentSession(ctx context.Context, orderID pgtype.UUID, oldSessionID string, arg store.AttachSessionParams) (bool, error)
}

// Service opens payment sessions for pending orders and answers status
// polls. Session references are attached to the order with conditional
// updates so concurrent create calls collapse to a single session.
type Service struct {
	Q          Querier
	Processor  Processor
	SuccessURL string
	CancelURL  string
	Log        zerolog.Logger
}

// StatusOutput is the payment status view for polling clients.
type StatusOutput struct {
	OrderID           string `json:"orderId"`
	Status            string `json:"status"`
	Total             int64  `json:"total"`
	Currency          string `json:"currency"`
	CheckoutSessionID string `json:"checkoutSessionId,omitempty"`
	PaymentIntentID   string `json:"paymentIntentId,omitempty"`
}

// CreateSession returns a payment handle for the order, reusing the existing
// still-valid session when one was already opened.
func (s *Service) CreateSession(ctx context.Context, userID pgtype.UUID, orderID string, idemKey string) (Session, error) {
	if s == nil || s.Q == nil || s.Processor == nil {
		return Session{}, errors.New("payment service not configured")
	}
	oID, err := store.ToUUID(orderID)
	if err != nil {
		return Session{}, common.ValidationError("BAD_REQUEST", "invalid order id", err)
	}
	order, err := s.Q.GetOrderForUser(ctx, oID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, common.NotFoundError("order not found", err)
		}
		return Session{}, err
	}
	switch order.Status {
	case store.OrderStatusPending, store.OrderStatusProcessing:
	default:
		return Session{}, common.ValidationError("ORDER_NOT_PAYABLE",
			"order is not awaiting payment", nil)
	}

	if order.CheckoutSessionID.Valid && order.CheckoutSessionID.String != "" {
		return s.reuseOrReplace(ctx, order, idemKey)
	}

	session, err := s.open(ctx, order, idemKey)
	if err != nil {
		return Session{}, err
	}
	attached, err := s.Q.AttachPaymentSession(ctx, store.AttachSessionParams{
		OrderID:           order.ID,
		CheckoutSessionID: pgtype.Text{String: session.ID, Valid: true},
		PaymentIntentID:   nullableText(session.IntentID),
	})
	if err != nil {
		return Session{}, err
	}
	if !attached {
		// A concurrent call won the attach; serve the session it opened.
		s.Log.Debug().Str("order_id", orderID).Msg("payment session attach lost race, reusing winner")
		current, err := s.Q.GetOrderForUser(ctx, oID, userID)
		if err != nil {
			return Session{}, err
		}
		if current.CheckoutSessionID.Valid && current.CheckoutSessionID.String != session.ID {
			return s.reuseOrReplace(ctx, current, idemKey)
		}
	}
	return session, nil
}

// Status reports the order's payment state for the success-page poll.
func (s *Service) Status(ctx context.Context, userID pgtype.UUID, orderID string) (StatusOutput, error) {
	if s == nil || s.Q == nil {
		return StatusOutput{}, errors.New("payment service not configured")
	}
	oID, err := store.ToUUID(orderID)
	if err != nil {
		return StatusOutput{}, common.ValidationError("BAD_REQUEST", "invalid order id", err)
	}
	order, err := s.Q.GetOrderForUser(ctx, oID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusOutput{}, common.NotFoundError("order not found", err)
		}
		return StatusOutput{}, err
	}
	return StatusOutput{
		OrderID:           store.UUIDString(order.ID),
		Status:            string(order.Status),
		Total:             order.Total,
		Currency:          order.Currency,
		CheckoutSessionID: textOrEmpty(order.CheckoutSessionID),
		PaymentIntentID:   textOrEmpty(order.PaymentIntentID),
	}, nil
}

func (s *Service) reuseOrReplace(ctx context.Context, order store.Order, idemKey string) (Session, error) {
	existing, err := s.Processor.GetSession(ctx, order.CheckoutSessionID.String)
	if err != nil {
		return Session{}, common.TransientError("PROCESSOR_ERROR", "unable to load payment session", err)
	}
	if existing.Open {
		return existing, nil
	}
	// The session lapsed before payment; open a fresh one and swap the
	// reference, guarded on the old value.
	session, err := s.open(ctx, order, idemKey)
	if err != nil {
		return Session{}, err
	}
	replaced, err := s.Q.ReplacePaymentSession(ctx, order.ID, order.CheckoutSessionID.String, store.AttachSessionParams{
		OrderID:           order.ID,
		CheckoutSessionID: pgtype.Text{String: session.ID, Valid: true},
		PaymentIntentID:   nullableText(session.IntentID),
	})
	if err != nil {
		return Session{}, err
	}
	if !replaced {
		return Session{}, common.ValidationError("ORDER_NOT_PAYABLE", "order state changed, re-check status", nil)
	}
	return session, nil
}

func (s *Service) open(ctx context.Context, order store.Order, idemKey string) (Session, error) {
	items, err := s.Q.ListOrderItems(ctx, order.ID)
	if err != nil {
		return Session{}, err
	}
	sessionItems := make([]SessionItem, 0, len(items))
	for _, it := range items {
		sessionItems = append(sessionItems, SessionItem{
			Name:     it.Name,
			Amount:   it.UnitPrice,
			Quantity: int64(it.Qty),
		})
	}
	// With a discount in play the per-line amounts overstate the total, so
	// collapse to a single order-level line.
	if order.Discount > 0 || len(sessionItems) == 0 {
		sessionItems = []SessionItem{{
			Name:     checkout.FormatNumber(order.Number),
			Amount:   order.Total,
			Quantity: 1,
		}}
	}
	session, err := s.Processor.CreateSession(ctx, SessionRequest{
		OrderID:        store.UUIDString(order.ID),
		OrderNumber:    checkout.FormatNumber(order.Number),
		Amount:         order.Total,
		Currency:       order.Currency,
		CustomerEmail:  order.CustomerEmail,
		SuccessURL:     s.SuccessURL,
		CancelURL:      s.CancelURL,
		IdempotencyKey: idemKey,
		Items:          sessionItems,
	})
	if err != nil {
		return Session{}, common.TransientError("PROCESSOR_ERROR", "unable to create payment session", err)
	}
	return session, nil
}

func nullableText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func textOrEmpty(v pgtype.Text) string {
	if !v.Valid {
		return ""
	}
	return v.String
}
