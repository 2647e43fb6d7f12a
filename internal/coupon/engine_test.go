package coupon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/pricing"
	"github.com/papercrane/storefront/internal/store"
)

func TestValidateInactive(t *testing.T) {
	rule := Rule{Active: false}
	if err := rule.Validate(time.Now(), 10_000, nil); err != ErrInactive {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestValidateWindow(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	rule := Rule{Active: true, ValidFrom: &future}
	if err := rule.Validate(now, 10_000, nil); err != ErrNotYetValid {
		t.Fatalf("expected ErrNotYetValid, got %v", err)
	}

	rule = Rule{Active: true, ValidTo: &past}
	if err := rule.Validate(now, 10_000, nil); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestValidateMinimumPurchase(t *testing.T) {
	rule := Rule{Active: true, MinPurchase: 5_000}
	if err := rule.Validate(time.Now(), 4_999, nil); err != ErrMinimumPurchase {
		t.Fatalf("expected ErrMinimumPurchase, got %v", err)
	}
	if err := rule.Validate(time.Now(), 5_000, nil); err != nil {
		t.Fatalf("expected subtotal at the floor to pass, got %v", err)
	}
}

func TestValidateUsageLimit(t *testing.T) {
	limit := int32(3)
	rule := Rule{Active: true, UsageLimit: &limit, UsedCount: 3}
	if err := rule.Validate(time.Now(), 10_000, nil); err != ErrUsageLimitReached {
		t.Fatalf("expected ErrUsageLimitReached, got %v", err)
	}
	rule.UsedCount = 2
	if err := rule.Validate(time.Now(), 10_000, nil); err != nil {
		t.Fatalf("expected remaining quota to pass, got %v", err)
	}
}

func TestValidateProductRestriction(t *testing.T) {
	restricted := uuidToPg(uuid.New())
	other := uuidToPg(uuid.New())
	rule := Rule{Active: true, AppliesTo: []pgtype.UUID{restricted}}

	if err := rule.Validate(time.Now(), 10_000, []pgtype.UUID{other}); err != ErrNotApplicable {
		t.Fatalf("expected ErrNotApplicable, got %v", err)
	}
	if err := rule.Validate(time.Now(), 10_000, []pgtype.UUID{other, restricted}); err != nil {
		t.Fatalf("expected intersecting cart to pass, got %v", err)
	}
}

func TestDiscountConversion(t *testing.T) {
	rule := Rule{Kind: store.CouponKindPercent, Value: 2500, MaxDiscount: 1_000}
	d := rule.Discount()
	if d == nil || d.Kind != pricing.DiscountPercent || d.Value != 2500 || d.MaxAmount != 1_000 {
		t.Fatalf("unexpected percent discount: %+v", d)
	}

	rule = Rule{Kind: store.CouponKindFixed, Value: 500}
	d = rule.Discount()
	if d == nil || d.Kind != pricing.DiscountFixed || d.Value != 500 {
		t.Fatalf("unexpected fixed discount: %+v", d)
	}

	rule = Rule{Kind: "bogus"}
	if rule.Discount() != nil {
		t.Fatal("expected nil discount for unknown kind")
	}
}

func TestIsRejection(t *testing.T) {
	for _, err := range []error{
		ErrInvalidCode, ErrInactive, ErrNotYetValid, ErrExpired,
		ErrMinimumPurchase, ErrUsageLimitReached, ErrNotApplicable,
	} {
		if !IsRejection(err) {
			t.Fatalf("expected %v to be a rejection", err)
		}
	}
	if IsRejection(errTest) {
		t.Fatal("infrastructure errors must not be rejections")
	}
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
