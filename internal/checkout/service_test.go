package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercrane/storefront/internal/cart"
	"github.com/papercrane/storefront/internal/catalog"
	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/coupon"
	"github.com/papercrane/storefront/internal/store"
)

// checkoutStub serves the querier interfaces of the collaborating services.
// The persistence phase is exercised elsewhere; these tests cover the
// validation pipeline that runs before any transaction begins.
type checkoutStub struct {
	items    []store.CartItem
	products map[[16]byte]store.Product
	coupon   store.Coupon
	bundles  []pgtype.UUID
	packages []pgtype.UUID
	owned    int64
}

func (s *checkoutStub) ListCartItems(ctx context.Context, userID pgtype.UUID) ([]store.CartItem, error) {
	return s.items, nil
}

func (s *checkoutStub) GetCartItemForUser(ctx context.Context, id, userID pgtype.UUID) (store.CartItem, error) {
	return store.CartItem{}, pgx.ErrNoRows
}

func (s *checkoutStub) UpsertCartItem(ctx context.Context, arg store.UpsertCartItemParams) (store.CartItem, error) {
	return store.CartItem{}, nil
}

func (s *checkoutStub) UpdateCartItemQty(ctx context.Context, id, userID pgtype.UUID, qty int32) (bool, error) {
	return false, nil
}

func (s *checkoutStub) DeleteCartItem(ctx context.Context, id, userID pgtype.UUID) (bool, error) {
	return false, nil
}

func (s *checkoutStub) ClearCart(ctx context.Context, userID pgtype.UUID) error { return nil }

func (s *checkoutStub) GetProduct(ctx context.Context, id pgtype.UUID) (store.Product, error) {
	if p, ok := s.products[id.Bytes]; ok {
		return p, nil
	}
	return store.Product{}, pgx.ErrNoRows
}

func (s *checkoutStub) GetProductsByIDs(ctx context.Context, ids []pgtype.UUID) ([]store.Product, error) {
	var out []store.Product
	for _, id := range ids {
		if p, ok := s.products[id.Bytes]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *checkoutStub) ListActiveProductIDsByKind(ctx context.Context, kind store.ProductKind) ([]pgtype.UUID, error) {
	if kind == store.ProductKindBundle {
		return s.bundles, nil
	}
	return s.packages, nil
}

func (s *checkoutStub) HasEntitlement(ctx context.Context, userID, productID pgtype.UUID) (bool, error) {
	return false, nil
}

func (s *checkoutStub) CountEntitlements(ctx context.Context, userID pgtype.UUID, productIDs []pgtype.UUID) (int64, error) {
	return s.owned, nil
}

func (s *checkoutStub) GetCouponByCode(ctx context.Context, code string) (store.Coupon, error) {
	if s.coupon.Code == "" || s.coupon.Code != code {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return s.coupon, nil
}

func (s *checkoutStub) InsertRedemption(ctx context.Context, arg store.InsertRedemptionParams) (bool, error) {
	return false, nil
}

func (s *checkoutStub) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) (bool, error) {
	return false, nil
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func newService(stub *checkoutStub) *Service {
	return &Service{
		// The zero pool satisfies the wiring guard; tests stop short of the
		// transaction phase.
		Pool:      &pgxpool.Pool{},
		Store:     store.New(nil),
		Cart:      &cart.Service{Q: stub},
		Catalog:   &catalog.Service{Q: stub},
		Coupons:   &coupon.Service{Q: stub},
		TaxBps:    0,
		Currency:  "USD",
		MinCharge: 50,
	}
}

func activeProduct(kind store.ProductKind, price int64) store.Product {
	return store.Product{
		ID:     uuidToPg(uuid.New()),
		Name:   "Deluxe Package",
		Kind:   kind,
		Price:  price,
		Active: true,
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError %s, got %v", code, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s", code, appErr.Code)
	}
}

func TestCreateEmptyCart(t *testing.T) {
	svc := newService(&checkoutStub{})
	_, err := svc.Create(context.Background(), uuidToPg(uuid.New()), Input{})
	assertCode(t, err, "EMPTY_CART")
}

func TestCreateInactiveProductInCart(t *testing.T) {
	product := activeProduct(store.ProductKindSingle, 5_000)
	product.Active = false
	user := uuidToPg(uuid.New())
	stub := &checkoutStub{
		items:    []store.CartItem{{ID: uuidToPg(uuid.New()), UserID: user, ProductID: product.ID, Qty: 1}},
		products: map[[16]byte]store.Product{product.ID.Bytes: product},
	}
	svc := newService(stub)
	_, err := svc.Create(context.Background(), user, Input{})
	assertCode(t, err, "PRODUCT_UNAVAILABLE")
}

func TestCreateBelowMinimumCharge(t *testing.T) {
	product := activeProduct(store.ProductKindSingle, 30)
	user := uuidToPg(uuid.New())
	stub := &checkoutStub{
		items:    []store.CartItem{{ID: uuidToPg(uuid.New()), UserID: user, ProductID: product.ID, Qty: 1}},
		products: map[[16]byte]store.Product{product.ID.Bytes: product},
	}
	svc := newService(stub)
	_, err := svc.Create(context.Background(), user, Input{})
	assertCode(t, err, "AMOUNT_TOO_SMALL")
}

func TestCreateRejectedCoupon(t *testing.T) {
	product := activeProduct(store.ProductKindSingle, 5_000)
	user := uuidToPg(uuid.New())
	stub := &checkoutStub{
		items:    []store.CartItem{{ID: uuidToPg(uuid.New()), UserID: user, ProductID: product.ID, Qty: 1}},
		products: map[[16]byte]store.Product{product.ID.Bytes: product},
		coupon: store.Coupon{
			ID:          uuidToPg(uuid.New()),
			Code:        "BIGSPEND",
			Kind:        store.CouponKindFixed,
			Value:       100,
			MinPurchase: 100_000,
			Active:      true,
		},
	}
	svc := newService(stub)
	_, err := svc.Create(context.Background(), user, Input{CouponCode: "BIGSPEND"})
	assertCode(t, err, "INVALID_COUPON")
}

func TestCreateExpressQtyBounds(t *testing.T) {
	svc := newService(&checkoutStub{})
	_, err := svc.CreateExpress(context.Background(), uuidToPg(uuid.New()), ExpressInput{
		ProductID: uuid.NewString(),
		Qty:       cart.MaxLineQty + 1,
	})
	assertCode(t, err, "BAD_REQUEST")
}

func TestCreateExpressUnknownProduct(t *testing.T) {
	svc := newService(&checkoutStub{})
	_, err := svc.CreateExpress(context.Background(), uuidToPg(uuid.New()), ExpressInput{
		ProductID: uuid.NewString(),
	})
	assertCode(t, err, "NOT_FOUND")
}

func TestCreateExpressPackageBlockedByBundle(t *testing.T) {
	product := activeProduct(store.ProductKindPackage, 10_000)
	stub := &checkoutStub{
		products: map[[16]byte]store.Product{product.ID.Bytes: product},
		bundles:  []pgtype.UUID{uuidToPg(uuid.New())},
		owned:    1,
	}
	svc := newService(stub)
	_, err := svc.CreateExpress(context.Background(), uuidToPg(uuid.New()), ExpressInput{
		ProductID: store.UUIDString(product.ID),
	})
	assertCode(t, err, "ALREADY_OWNED")
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(42); got != "ORD-000042" {
		t.Fatalf("expected ORD-000042, got %s", got)
	}
	if got := FormatNumber(1_234_567); got != "ORD-1234567" {
		t.Fatalf("expected ORD-1234567, got %s", got)
	}
}

func TestExpiredCouponRejected(t *testing.T) {
	product := activeProduct(store.ProductKindSingle, 5_000)
	user := uuidToPg(uuid.New())
	stub := &checkoutStub{
		items:    []store.CartItem{{ID: uuidToPg(uuid.New()), UserID: user, ProductID: product.ID, Qty: 1}},
		products: map[[16]byte]store.Product{product.ID.Bytes: product},
		coupon: store.Coupon{
			ID:      uuidToPg(uuid.New()),
			Code:    "OLD",
			Kind:    store.CouponKindFixed,
			Value:   100,
			Active:  true,
			ValidTo: pgtype.Timestamptz{Time: time.Now().Add(-time.Hour), Valid: true},
		},
	}
	svc := newService(stub)
	_, err := svc.Create(context.Background(), user, Input{CouponCode: "OLD"})
	assertCode(t, err, "INVALID_COUPON")
}
