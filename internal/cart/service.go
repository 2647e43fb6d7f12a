package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/store"
)

// MaxLineQty bounds the quantity of a single cart line.
const MaxLineQty = 10

// ErrNotFound indicates the requested cart item could not be located for the
// calling user. Cross-user access deliberately reports the same error.
var ErrNotFound = errors.New("cart item not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Querier captures the database methods required by the cart service.
type Querier interface {
	ListCartItems(ctx context.Context, userID pgtype.UUID) ([]store.CartItem, error)
	GetCartItemForUser(ctx context.Context, id, userID pgtype.UUID) (store.CartItem, error)
	UpsertCartItem(ctx context.Context, arg store.UpsertCartItemParams) (store.CartItem, error)
	UpdateCartItemQty(ctx context.Context, id, userID pgtype.UUID, qty int32) (bool, error)
	DeleteCartItem(ctx context.Context, id, userID pgtype.UUID) (bool, error)
	ClearCart(ctx context.Context, userID pgtype.UUID) error
	GetProduct(ctx context.Context, id pgtype.UUID) (store.Product, error)
	GetProductsByIDs(ctx context.Context, ids []pgtype.UUID) ([]store.Product, error)
}

// Line pairs a cart item with its catalog entry.
type Line struct {
	Item    store.CartItem
	Product store.Product
}

// Snapshot is the cart state used for pricing and checkout.
type Snapshot struct {
	Lines    []Line
	Subtotal int64
}

// Service encapsulates cart domain operations. Every mutation is scoped to
// the owning user at the SQL level; the handler layer never passes a foreign
// user id through.
type Service struct {
	Q Querier
}

// AddItem inserts or increments a cart line after checking the product is
// still purchasable.
func (s *Service) AddItem(ctx context.Context, userID pgtype.UUID, productID string, variantID *string, qty int) (store.CartItem, error) {
	if s == nil || s.Q == nil {
		return store.CartItem{}, errors.New("cart service not configured")
	}
	if qty < 1 || qty > MaxLineQty {
		return store.CartItem{}, fmt.Errorf("qty must be between 1 and %d: %w", MaxLineQty, ErrInvalidInput)
	}
	pID, err := store.ToUUID(productID)
	if err != nil {
		return store.CartItem{}, fmt.Errorf("parse product id: %w", ErrInvalidInput)
	}
	product, err := s.Q.GetProduct(ctx, pID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CartItem{}, fmt.Errorf("unknown product: %w", ErrInvalidInput)
		}
		return store.CartItem{}, err
	}
	if !product.Active {
		return store.CartItem{}, fmt.Errorf("product is not available: %w", ErrInvalidInput)
	}
	variant := pgtype.Text{}
	if variantID != nil && *variantID != "" {
		variant = pgtype.Text{String: *variantID, Valid: true}
	}
	return s.Q.UpsertCartItem(ctx, store.UpsertCartItemParams{
		UserID:    userID,
		ProductID: pID,
		VariantID: variant,
		Qty:       int32(qty),
		MaxQty:    MaxLineQty,
	})
}

// UpdateQty sets the quantity of an owned cart line.
func (s *Service) UpdateQty(ctx context.Context, userID pgtype.UUID, itemID string, qty int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if qty < 1 || qty > MaxLineQty {
		return fmt.Errorf("qty must be between 1 and %d: %w", MaxLineQty, ErrInvalidInput)
	}
	id, err := store.ToUUID(itemID)
	if err != nil {
		return fmt.Errorf("parse item id: %w", ErrInvalidInput)
	}
	updated, err := s.Q.UpdateCartItemQty(ctx, id, userID, int32(qty))
	if err != nil {
		return err
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

// RemoveItem deletes an owned cart line.
func (s *Service) RemoveItem(ctx context.Context, userID pgtype.UUID, itemID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	id, err := store.ToUUID(itemID)
	if err != nil {
		return fmt.Errorf("parse item id: %w", ErrInvalidInput)
	}
	deleted, err := s.Q.DeleteCartItem(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID pgtype.UUID) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	return s.Q.ClearCart(ctx, userID)
}

// GetSnapshot loads the cart with catalog data and the subtotal in minor
// units.
func (s *Service) GetSnapshot(ctx context.Context, userID pgtype.UUID) (Snapshot, error) {
	if s == nil || s.Q == nil {
		return Snapshot{}, errors.New("cart service not configured")
	}
	items, err := s.Q.ListCartItems(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(items) == 0 {
		return Snapshot{}, nil
	}
	ids := make([]pgtype.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Q.GetProductsByIDs(ctx, ids)
	if err != nil {
		return Snapshot{}, err
	}
	byID := make(map[[16]byte]store.Product, len(products))
	for _, p := range products {
		byID[p.ID.Bytes] = p
	}
	snap := Snapshot{Lines: make([]Line, 0, len(items))}
	for _, it := range items {
		product, ok := byID[it.ProductID.Bytes]
		if !ok {
			return Snapshot{}, fmt.Errorf("product %s missing from catalog", store.UUIDString(it.ProductID))
		}
		snap.Lines = append(snap.Lines, Line{Item: it, Product: product})
		snap.Subtotal += int64(it.Qty) * product.Price
	}
	return snap, nil
}
