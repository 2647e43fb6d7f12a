package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/store"
)

// ErrNotFound indicates the product does not exist or is inactive.
var ErrNotFound = errors.New("product not found")

// ErrAlreadyOwned rejects re-buying a product the user already holds an
// entitlement for.
var ErrAlreadyOwned = errors.New("you already own this product")

// ErrAlreadyOwnsBundle rejects buying a package when the user already owns a
// bundle that includes it.
var ErrAlreadyOwnsBundle = errors.New("the bundle you own already includes this package")

// ErrOwnsAllPackages rejects buying the bundle when the user already owns
// every individual package.
var ErrOwnsAllPackages = errors.New("you already own every package in this bundle")

// Querier captures the catalog reads used by cart and checkout.
type Querier interface {
	GetProduct(ctx context.Context, id pgtype.UUID) (store.Product, error)
	ListActiveProductIDsByKind(ctx context.Context, kind store.ProductKind) ([]pgtype.UUID, error)
	HasEntitlement(ctx context.Context, userID, productID pgtype.UUID) (bool, error)
	CountEntitlements(ctx context.Context, userID pgtype.UUID, productIDs []pgtype.UUID) (int64, error)
}

// Service is the read-only catalog facade.
type Service struct {
	Q Querier
}

// GetForPurchase resolves an active product, hiding inactive entries.
func (s *Service) GetForPurchase(ctx context.Context, id pgtype.UUID) (store.Product, error) {
	if s == nil || s.Q == nil {
		return store.Product{}, errors.New("catalog service not configured")
	}
	product, err := s.Q.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Product{}, ErrNotFound
		}
		return store.Product{}, err
	}
	if !product.Active {
		return store.Product{}, ErrNotFound
	}
	return product, nil
}

// CheckExpressPurchase enforces the single-product purchase rules: a package
// cannot be bought by a user who owns an all-inclusive bundle, and the bundle
// cannot be bought by a user who already owns every individual package. These
// run before any payment session is created.
func (s *Service) CheckExpressPurchase(ctx context.Context, userID pgtype.UUID, product store.Product) error {
	if s == nil || s.Q == nil {
		return errors.New("catalog service not configured")
	}
	owned, err := s.Q.HasEntitlement(ctx, userID, product.ID)
	if err != nil {
		return err
	}
	if owned {
		return ErrAlreadyOwned
	}
	switch product.Kind {
	case store.ProductKindPackage:
		bundles, err := s.Q.ListActiveProductIDsByKind(ctx, store.ProductKindBundle)
		if err != nil {
			return err
		}
		if len(bundles) == 0 {
			return nil
		}
		owned, err := s.Q.CountEntitlements(ctx, userID, bundles)
		if err != nil {
			return err
		}
		if owned > 0 {
			return ErrAlreadyOwnsBundle
		}
	case store.ProductKindBundle:
		packages, err := s.Q.ListActiveProductIDsByKind(ctx, store.ProductKindPackage)
		if err != nil {
			return err
		}
		if len(packages) == 0 {
			return nil
		}
		owned, err := s.Q.CountEntitlements(ctx, userID, packages)
		if err != nil {
			return err
		}
		if owned >= int64(len(packages)) {
			return ErrOwnsAllPackages
		}
	}
	return nil
}
