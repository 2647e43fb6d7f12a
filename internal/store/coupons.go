package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const couponColumns = `id, code, kind, value, min_purchase, max_discount, applies_to,
usage_limit, used_count, active, valid_from, valid_to`

func scanCoupon(row interface{ Scan(dest ...any) error }) (Coupon, error) {
	var c Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Kind, &c.Value, &c.MinPurchase, &c.MaxDiscount, &c.AppliesTo,
		&c.UsageLimit, &c.UsedCount, &c.Active, &c.ValidFrom, &c.ValidTo,
	)
	return c, err
}

// GetCouponByCode fetches a coupon by its normalized (upper-cased) code.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(s.db.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = upper($1)`, code))
}

// InsertRedemptionParams records one coupon use against one order.
type InsertRedemptionParams struct {
	CouponID pgtype.UUID
	OrderID  pgtype.UUID
	UserID   pgtype.UUID
	Amount   int64
}

// InsertRedemption records the redemption, returning false when the order has
// already redeemed this coupon. The unique constraint on order_id is what
// makes replayed completions observe "already redeemed" instead of racing.
func (s *Store) InsertRedemption(ctx context.Context, arg InsertRedemptionParams) (bool, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO coupon_redemptions (coupon_id, order_id, user_id, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id) DO NOTHING`, arg.CouponID, arg.OrderID, arg.UserID, arg.Amount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementCouponUsage bumps the usage counter without ever exceeding the
// usage limit. Returns false when the coupon is already at its limit.
func (s *Store) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE coupons
SET used_count = used_count + 1
WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
