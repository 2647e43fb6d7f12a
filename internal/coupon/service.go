package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/store"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	InsertRedemption(ctx context.Context, arg store.InsertRedemptionParams) (bool, error)
	IncrementCouponUsage(ctx context.Context, id pgtype.UUID) (bool, error)
}

// Service evaluates coupon rules and records redemptions.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Validate looks up the code and runs the eligibility checks against the cart
// snapshot. A nil error means the returned coupon may be applied; the usage
// counter is not touched here.
func (s *Service) Validate(ctx context.Context, code string, cartSubtotal int64, productIDs []pgtype.UUID) (store.Coupon, error) {
	if s == nil || s.Q == nil {
		return store.Coupon{}, errors.New("coupon service not configured")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return store.Coupon{}, ErrInvalidCode
	}
	c, err := s.Q.GetCouponByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Coupon{}, ErrInvalidCode
		}
		return store.Coupon{}, err
	}
	if err := RuleFromModel(c).Validate(s.now(), cartSubtotal, productIDs); err != nil {
		return store.Coupon{}, err
	}
	return c, nil
}

// Redeem records coupon usage for a paid order exactly once. Callers hand in
// the transaction-scoped querier so the redemption commits or rolls back with
// the order-status transition that triggered it. A replayed completion finds
// the redemption row already present and returns without incrementing.
func (s *Service) Redeem(ctx context.Context, q Querier, couponID, orderID, userID pgtype.UUID, amount int64) error {
	if s == nil {
		return errors.New("coupon service not configured")
	}
	if q == nil {
		q = s.Q
	}
	if q == nil {
		return errors.New("coupon service not configured")
	}
	if !couponID.Valid || !orderID.Valid {
		return nil
	}
	if amount < 0 {
		amount = 0
	}
	inserted, err := q.InsertRedemption(ctx, store.InsertRedemptionParams{
		CouponID: couponID,
		OrderID:  orderID,
		UserID:   userID,
		Amount:   amount,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	// The increment is conditional on used_count < usage_limit; losing the
	// race at exactly the limit leaves the redemption recorded but the
	// counter pinned, which is the behaviour we want for the invariant.
	_, err = q.IncrementCouponUsage(ctx, couponID)
	return err
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
