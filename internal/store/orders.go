package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, number, status, subtotal, discount, tax, total, currency,
checkout_session_id, payment_intent_id, customer_name, customer_email, coupon_id,
partner_coupon_code, partner_coupon_expires_at, partner_coupon_used, partner_coupon_used_at,
created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Number, &o.Status, &o.Subtotal, &o.Discount, &o.Tax, &o.Total, &o.Currency,
		&o.CheckoutSessionID, &o.PaymentIntentID, &o.CustomerName, &o.CustomerEmail, &o.CouponID,
		&o.PartnerCouponCode, &o.PartnerCouponExpiresAt, &o.PartnerCouponUsed, &o.PartnerCouponUsedAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// CreateOrderParams carries the fields persisted when an order is built.
type CreateOrderParams struct {
	UserID        pgtype.UUID
	Subtotal      int64
	Discount      int64
	Tax           int64
	Total         int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CouponID      pgtype.UUID
}

// CreateOrder inserts a pending order, drawing its human-readable number from
// the order number sequence.
func (s *Store) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO orders
(user_id, number, status, subtotal, discount, tax, total, currency, customer_name, customer_email, coupon_id)
VALUES ($1, nextval('order_numbers'), 'pending', $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+orderColumns,
		arg.UserID, arg.Subtotal, arg.Discount, arg.Tax, arg.Total, arg.Currency,
		arg.CustomerName, arg.CustomerEmail, arg.CouponID)
	return scanOrder(row)
}

// CreateOrderItemParams snapshots one line of an order.
type CreateOrderItemParams struct {
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	UnitPrice int64
	Qty       int32
	LineTotal int64
}

// CreateOrderItem persists a single order line.
func (s *Store) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := s.db.Exec(ctx, `INSERT INTO order_items (order_id, product_id, name, unit_price, qty, line_total)
VALUES ($1, $2, $3, $4, $5, $6)`,
		arg.OrderID, arg.ProductID, arg.Name, arg.UnitPrice, arg.Qty, arg.LineTotal)
	return err
}

// GetOrderByID fetches an order by primary key.
func (s *Store) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetOrderForUser fetches an order scoped to its owner.
func (s *Store) GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (Order, error) {
	return scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID))
}

// GetOrderBySessionID locates an order via its checkout session reference.
func (s *Store) GetOrderBySessionID(ctx context.Context, sessionID string) (Order, error) {
	return scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_session_id = $1`, sessionID))
}

// GetOrderByIntentID locates an order via its payment intent reference.
func (s *Store) GetOrderByIntentID(ctx context.Context, intentID string) (Order, error) {
	return scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, intentID))
}

// ListOrdersByUser returns a page of the user's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Order, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOrderItems returns the snapshot lines for an order.
func (s *Store) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := s.db.Query(ctx, `SELECT id, order_id, product_id, name, unit_price, qty, line_total
FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Qty, &it.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AttachSessionParams records the processor references handed back when a
// payment session is opened.
type AttachSessionParams struct {
	OrderID           pgtype.UUID
	CheckoutSessionID pgtype.Text
	PaymentIntentID   pgtype.Text
}

// AttachPaymentSession performs the one-time upgrade from "no processor
// reference" to "reference assigned" and moves the order into processing.
// Returns false when the order already carries a session reference or is no
// longer pending.
func (s *Store) AttachPaymentSession(ctx context.Context, arg AttachSessionParams) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET checkout_session_id = $2, payment_intent_id = COALESCE(payment_intent_id, $3),
    status = 'processing', updated_at = now()
WHERE id = $1 AND status = 'pending' AND checkout_session_id IS NULL`,
		arg.OrderID, arg.CheckoutSessionID, arg.PaymentIntentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReplacePaymentSession swaps an expired session reference for a fresh one.
// Guarded on the old reference so two racing replacements cannot both win.
func (s *Store) ReplacePaymentSession(ctx context.Context, orderID pgtype.UUID, oldSessionID string, arg AttachSessionParams) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET checkout_session_id = $3, payment_intent_id = $4, updated_at = now()
WHERE id = $1 AND status = 'processing' AND checkout_session_id = $2`,
		orderID, oldSessionID, arg.CheckoutSessionID, arg.PaymentIntentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteOrder is the guarded transition into completed. The WHERE clause is
// the idempotency gate: a concurrent or duplicate delivery observes zero rows
// affected and must skip side effects.
func (s *Store) CompleteOrder(ctx context.Context, orderID pgtype.UUID, intentID pgtype.Text) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET status = 'completed', payment_intent_id = COALESCE(payment_intent_id, $2), updated_at = now()
WHERE id = $1 AND status IN ('pending', 'processing')`, orderID, intentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelOrder transitions pending or processing orders to cancelled.
func (s *Store) CancelOrder(ctx context.Context, orderID pgtype.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status IN ('pending', 'processing')`, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RefundOrder transitions a completed order to refunded.
func (s *Store) RefundOrder(ctx context.Context, orderID pgtype.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET status = 'refunded', updated_at = now()
WHERE id = $1 AND status = 'completed'`, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MintPartnerCouponParams describes the partner code attached on fulfillment.
type MintPartnerCouponParams struct {
	OrderID   pgtype.UUID
	Code      string
	ExpiresAt pgtype.Timestamptz
}

// MintPartnerCoupon attaches a partner coupon to the order at most once; the
// NULL guard makes concurrent mints collapse to a single winner.
func (s *Store) MintPartnerCoupon(ctx context.Context, arg MintPartnerCouponParams) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE orders
SET partner_coupon_code = $2, partner_coupon_expires_at = $3, partner_coupon_used = false, updated_at = now()
WHERE id = $1 AND partner_coupon_code IS NULL`, arg.OrderID, arg.Code, arg.ExpiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
