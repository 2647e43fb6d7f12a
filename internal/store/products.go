package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, slug, kind, price, active`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Kind, &p.Price, &p.Active)
	return p, err
}

// GetProduct fetches one catalog entry.
func (s *Store) GetProduct(ctx context.Context, id pgtype.UUID) (Product, error) {
	return scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// GetProductsByIDs fetches the catalog entries for the given ids.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []pgtype.UUID) ([]Product, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActiveProductIDsByKind returns ids of active products of the given kind.
func (s *Store) ListActiveProductIDsByKind(ctx context.Context, kind ProductKind) ([]pgtype.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM products WHERE kind = $1 AND active`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pgtype.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// HasEntitlement reports whether the user already owns the product.
func (s *Store) HasEntitlement(ctx context.Context, userID, productID pgtype.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM user_entitlements WHERE user_id = $1 AND product_id = $2)`, userID, productID).Scan(&exists)
	return exists, err
}

// CountEntitlements returns how many of the given products the user owns.
func (s *Store) CountEntitlements(ctx context.Context, userID pgtype.UUID, productIDs []pgtype.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM user_entitlements
WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs).Scan(&count)
	return count, err
}

// InsertEntitlement records ownership idempotently.
func (s *Store) InsertEntitlement(ctx context.Context, userID, productID, orderID pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `INSERT INTO user_entitlements (user_id, product_id, order_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, product_id) DO NOTHING`, userID, productID, orderID)
	return err
}
