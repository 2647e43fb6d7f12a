package coupon

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/pricing"
	"github.com/papercrane/storefront/internal/store"
)

var (
	// ErrInvalidCode is returned when no coupon matches the supplied code.
	ErrInvalidCode = errors.New("Invalid coupon code")
	// ErrInactive is returned when the coupon has been switched off.
	ErrInactive = errors.New("coupon is not active")
	// ErrNotYetValid is returned before the coupon's validity window opens.
	ErrNotYetValid = errors.New("coupon is not valid yet")
	// ErrExpired is returned after the coupon's validity window closes.
	ErrExpired = errors.New("coupon has expired")
	// ErrMinimumPurchase indicates the cart subtotal is below the coupon floor.
	ErrMinimumPurchase = errors.New("cart subtotal below coupon minimum purchase")
	// ErrUsageLimitReached indicates the coupon's global quota is exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrNotApplicable indicates no cart product intersects the coupon's
	// restriction set.
	ErrNotApplicable = errors.New("coupon does not apply to these products")
)

// IsRejection reports whether err is a coupon eligibility failure rather
// than an infrastructure error.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidCode, ErrInactive, ErrNotYetValid, ErrExpired,
		ErrMinimumPurchase, ErrUsageLimitReached, ErrNotApplicable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code        string
	Kind        store.CouponKind
	Value       int64
	MinPurchase int64
	MaxDiscount int64
	AppliesTo   []pgtype.UUID
	UsageLimit  *int32
	UsedCount   int32
	Active      bool
	ValidFrom   *time.Time
	ValidTo     *time.Time
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure. Redemption accounting happens later, at confirmed payment.
func (r Rule) Validate(now time.Time, cartSubtotal int64, productIDs []pgtype.UUID) error {
	if !r.Active {
		return ErrInactive
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrNotYetValid
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if cartSubtotal < r.MinPurchase {
		return ErrMinimumPurchase
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if len(r.AppliesTo) > 0 && !intersects(r.AppliesTo, productIDs) {
		return ErrNotApplicable
	}
	return nil
}

// Discount converts the rule into the pricing representation.
func (r Rule) Discount() *pricing.Discount {
	d := &pricing.Discount{Value: r.Value, MaxAmount: r.MaxDiscount}
	switch r.Kind {
	case store.CouponKindPercent:
		d.Kind = pricing.DiscountPercent
	case store.CouponKindFixed:
		d.Kind = pricing.DiscountFixed
	default:
		return nil
	}
	return d
}

// RuleFromModel converts the persisted coupon into an evaluable rule.
func RuleFromModel(c store.Coupon) Rule {
	rule := Rule{
		Code:        c.Code,
		Kind:        c.Kind,
		Value:       c.Value,
		MinPurchase: c.MinPurchase,
		AppliesTo:   c.AppliesTo,
		UsedCount:   c.UsedCount,
		Active:      c.Active,
	}
	if c.MaxDiscount.Valid {
		rule.MaxDiscount = c.MaxDiscount.Int64
	}
	if c.UsageLimit.Valid {
		limit := c.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	if c.ValidFrom.Valid {
		rule.ValidFrom = &c.ValidFrom.Time
	}
	if c.ValidTo.Valid {
		rule.ValidTo = &c.ValidTo.Time
	}
	return rule
}

func intersects(restricted, cart []pgtype.UUID) bool {
	for _, want := range restricted {
		if !want.Valid {
			continue
		}
		for _, have := range cart {
			if have.Valid && have.Bytes == want.Bytes {
				return true
			}
		}
	}
	return false
}
