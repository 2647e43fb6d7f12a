package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/store"
)

type stubQuerier struct {
	product    store.Product
	productErr error

	idsByKind map[store.ProductKind][]pgtype.UUID
	owned     int64
	ownsIt    bool
}

func (s *stubQuerier) GetProduct(ctx context.Context, id pgtype.UUID) (store.Product, error) {
	if s.productErr != nil {
		return store.Product{}, s.productErr
	}
	return s.product, nil
}

func (s *stubQuerier) ListActiveProductIDsByKind(ctx context.Context, kind store.ProductKind) ([]pgtype.UUID, error) {
	return s.idsByKind[kind], nil
}

func (s *stubQuerier) HasEntitlement(ctx context.Context, userID, productID pgtype.UUID) (bool, error) {
	return s.ownsIt, nil
}

func (s *stubQuerier) CountEntitlements(ctx context.Context, userID pgtype.UUID, productIDs []pgtype.UUID) (int64, error) {
	return s.owned, nil
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func TestGetForPurchaseUnknown(t *testing.T) {
	svc := &Service{Q: &stubQuerier{productErr: pgx.ErrNoRows}}
	_, err := svc.GetForPurchase(context.Background(), uuidToPg(uuid.New()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetForPurchaseInactive(t *testing.T) {
	svc := &Service{Q: &stubQuerier{product: store.Product{Active: false}}}
	_, err := svc.GetForPurchase(context.Background(), uuidToPg(uuid.New()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive product, got %v", err)
	}
}

func TestExpressRepurchaseBlocked(t *testing.T) {
	svc := &Service{Q: &stubQuerier{ownsIt: true}}
	err := svc.CheckExpressPurchase(context.Background(), uuidToPg(uuid.New()), store.Product{Kind: store.ProductKindSingle})
	if !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("expected ErrAlreadyOwned, got %v", err)
	}
}

func TestExpressPackageBlockedByBundle(t *testing.T) {
	q := &stubQuerier{
		idsByKind: map[store.ProductKind][]pgtype.UUID{
			store.ProductKindBundle: {uuidToPg(uuid.New())},
		},
		owned: 1,
	}
	svc := &Service{Q: q}
	err := svc.CheckExpressPurchase(context.Background(), uuidToPg(uuid.New()), store.Product{Kind: store.ProductKindPackage})
	if !errors.Is(err, ErrAlreadyOwnsBundle) {
		t.Fatalf("expected ErrAlreadyOwnsBundle, got %v", err)
	}
}

func TestExpressPackageAllowedWithoutBundle(t *testing.T) {
	q := &stubQuerier{
		idsByKind: map[store.ProductKind][]pgtype.UUID{
			store.ProductKindBundle: {uuidToPg(uuid.New())},
		},
		owned: 0,
	}
	svc := &Service{Q: q}
	if err := svc.CheckExpressPurchase(context.Background(), uuidToPg(uuid.New()), store.Product{Kind: store.ProductKindPackage}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExpressBundleBlockedWhenAllPackagesOwned(t *testing.T) {
	q := &stubQuerier{
		idsByKind: map[store.ProductKind][]pgtype.UUID{
			store.ProductKindPackage: {uuidToPg(uuid.New()), uuidToPg(uuid.New())},
		},
		owned: 2,
	}
	svc := &Service{Q: q}
	err := svc.CheckExpressPurchase(context.Background(), uuidToPg(uuid.New()), store.Product{Kind: store.ProductKindBundle})
	if !errors.Is(err, ErrOwnsAllPackages) {
		t.Fatalf("expected ErrOwnsAllPackages, got %v", err)
	}
}

func TestExpressBundleAllowedWithPartialOwnership(t *testing.T) {
	q := &stubQuerier{
		idsByKind: map[store.ProductKind][]pgtype.UUID{
			store.ProductKindPackage: {uuidToPg(uuid.New()), uuidToPg(uuid.New())},
		},
		owned: 1,
	}
	svc := &Service{Q: q}
	if err := svc.CheckExpressPurchase(context.Background(), uuidToPg(uuid.New()), store.Product{Kind: store.ProductKindBundle}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExpressSingleHasNoGuards(t *testing.T) {
	svc := &Service{Q: &stubQuerier{}}
	if err := svc.CheckExpressPurchase(context.Background(), uuidToPg(uuid.New()), store.Product{Kind: store.ProductKindSingle}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
