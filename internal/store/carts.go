package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const cartItemColumns = `id, user_id, product_id, variant_id, qty, created_at, updated_at`

func scanCartItem(row interface{ Scan(dest ...any) error }) (CartItem, error) {
	var it CartItem
	err := row.Scan(&it.ID, &it.UserID, &it.ProductID, &it.VariantID, &it.Qty, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// ListCartItems returns all cart lines owned by the user, oldest first.
func (s *Store) ListCartItems(ctx context.Context, userID pgtype.UUID) ([]CartItem, error) {
	rows, err := s.db.Query(ctx, `SELECT `+cartItemColumns+` FROM cart_items
WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetCartItemForUser fetches a cart line scoped to its owner.
func (s *Store) GetCartItemForUser(ctx context.Context, id, userID pgtype.UUID) (CartItem, error) {
	return scanCartItem(s.db.QueryRow(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID))
}

// UpsertCartItemParams identifies the line to insert or increment.
type UpsertCartItemParams struct {
	UserID    pgtype.UUID
	ProductID pgtype.UUID
	VariantID pgtype.Text
	Qty       int32
	MaxQty    int32
}

// UpsertCartItem inserts the line or adds to its quantity, clamping at the
// per-line maximum.
func (s *Store) UpsertCartItem(ctx context.Context, arg UpsertCartItemParams) (CartItem, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO cart_items (user_id, product_id, variant_id, qty)
VALUES ($1, $2, $3, LEAST($4, $5))
ON CONFLICT (user_id, product_id, variant_id)
DO UPDATE SET qty = LEAST(cart_items.qty + EXCLUDED.qty, $5), updated_at = now()
RETURNING `+cartItemColumns,
		arg.UserID, arg.ProductID, arg.VariantID, arg.Qty, arg.MaxQty)
	return scanCartItem(row)
}

// UpdateCartItemQty sets a line's quantity; ownership is enforced in the
// predicate so cross-user mutation reports not-found.
func (s *Store) UpdateCartItemQty(ctx context.Context, id, userID pgtype.UUID, qty int32) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE cart_items SET qty = $3, updated_at = now()
WHERE id = $1 AND user_id = $2`, id, userID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteCartItem removes one owned cart line.
func (s *Store) DeleteCartItem(ctx context.Context, id, userID pgtype.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearCart removes every line in the user's cart.
func (s *Store) ClearCart(ctx context.Context, userID pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
