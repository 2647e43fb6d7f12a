package fulfillment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/papercrane/storefront/internal/events"
	"github.com/papercrane/storefront/internal/obs"
	"github.com/papercrane/storefront/internal/store"
)

// Querier captures the transaction-scoped writes issued while fulfilling.
type Querier interface {
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	GetProductsByIDs(ctx context.Context, ids []pgtype.UUID) ([]store.Product, error)
	MintPartnerCoupon(ctx context.Context, arg store.MintPartnerCouponParams) (bool, error)
	InsertEntitlement(ctx context.Context, userID, productID, orderID pgtype.UUID) error
}

// Result summarises what fulfillment produced for an order.
type Result struct {
	PartnerCouponCode      string
	PartnerCouponExpiresAt time.Time
	Entitlements           int
}

// Dispatcher applies completion side effects. Writes that must be exactly
// once (partner coupon, entitlements) run inside the completing transaction;
// notification fan-out runs after commit and never blocks the transition.
type Dispatcher struct {
	Events     *events.Bus
	CodePrefix string
	CouponTTL  time.Duration
	Now        func() time.Time
	Log        zerolog.Logger
}

// Apply runs the in-transaction side effects for an order that just made its
// first arrival at completed.
func (d *Dispatcher) Apply(ctx context.Context, q Querier, order store.Order) (Result, error) {
	if d == nil || q == nil {
		return Result{}, errors.New("fulfillment dispatcher not configured")
	}
	items, err := q.ListOrderItems(ctx, order.ID)
	if err != nil {
		return Result{}, err
	}
	ids := make([]pgtype.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := q.GetProductsByIDs(ctx, ids)
	if err != nil {
		return Result{}, err
	}

	var result Result
	hasPackage := false
	for _, p := range products {
		if p.Kind == store.ProductKindPackage {
			hasPackage = true
		}
		if err := q.InsertEntitlement(ctx, order.UserID, p.ID, order.ID); err != nil {
			countEffect("entitlement", "error")
			return Result{}, err
		}
		countEffect("entitlement", "ok")
		result.Entitlements++
	}

	if hasPackage && !order.PartnerCouponCode.Valid {
		code, err := d.newPartnerCode(order.ID)
		if err != nil {
			return Result{}, err
		}
		expiresAt := d.now().Add(d.couponTTL())
		minted, err := q.MintPartnerCoupon(ctx, store.MintPartnerCouponParams{
			OrderID:   order.ID,
			Code:      code,
			ExpiresAt: pgtype.Timestamptz{Time: expiresAt, Valid: true},
		})
		if err != nil {
			countEffect("partner_coupon", "error")
			return Result{}, err
		}
		if minted {
			countEffect("partner_coupon", "ok")
			result.PartnerCouponCode = code
			result.PartnerCouponExpiresAt = expiresAt
		} else {
			countEffect("partner_coupon", "skipped")
		}
	}
	return result, nil
}

// AfterComplete emits the completion event once the transaction committed.
// Failures are logged and dropped; they never unwind the status transition.
func (d *Dispatcher) AfterComplete(ctx context.Context, order store.Order, result Result) {
	if d == nil || d.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId": store.UUIDString(order.ID),
		"userId":  store.UUIDString(order.UserID),
		"email":   order.CustomerEmail,
		"name":    order.CustomerName,
		"total":   order.Total,
	}
	if result.PartnerCouponCode != "" {
		payload["partnerCoupon"] = result.PartnerCouponCode
		payload["partnerCouponExpiresAt"] = result.PartnerCouponExpiresAt.Format(time.RFC3339)
	}
	if _, err := d.Events.Emit(ctx, events.TopicOrderCompleted, order.ID, payload); err != nil {
		d.Log.Error().Err(err).Str("order_id", store.UUIDString(order.ID)).Msg("emit order completed")
	}
}

// newPartnerCode renders PREFIX-{orderIdShort}-{random6}.
func (d *Dispatcher) newPartnerCode(orderID pgtype.UUID) (string, error) {
	prefix := d.CodePrefix
	if prefix == "" {
		prefix = "PARTNER"
	}
	short := strings.ToUpper(strings.ReplaceAll(store.UUIDString(orderID), "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	suffix, err := randomCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, short, suffix), nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) couponTTL() time.Duration {
	if d != nil && d.CouponTTL > 0 {
		return d.CouponTTL
	}
	return 90 * 24 * time.Hour
}

func countEffect(effect, result string) {
	if obs.FulfillmentEffectTotal == nil {
		return
	}
	obs.FulfillmentEffectTotal.WithLabelValues(effect, result).Inc()
}
