package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// DiscountKind enumerates supported coupon discount shapes.
type DiscountKind string

const (
	// DiscountPercent applies a percentage of the subtotal, expressed in
	// basis points (2500 = 25%).
	DiscountPercent DiscountKind = "percent"
	// DiscountFixed subtracts a fixed amount from the subtotal.
	DiscountFixed DiscountKind = "fixed"
)

// Discount describes the coupon applied to an order, if any.
type Discount struct {
	Kind DiscountKind
	// Value is basis points for percent discounts, minor units for fixed.
	Value int64
	// MaxAmount caps percent discounts when positive.
	MaxAmount int64
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money
	Discount Money
	Tax      Money
	Total    Money
}

// Compute calculates order totals in minor units. Tax is derived from the
// post-discount amount using a basis-points rate so the signature stays stable
// when jurisdiction rules arrive.
func Compute(items []Item, discount *Discount, taxBps int) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 || it.UnitPrice < 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}

	off := DiscountAmount(subtotal, discount)

	taxable := subtotal - off
	if taxable < 0 {
		taxable = 0
	}
	tax := (taxable * Money(taxBps)) / 10000

	total := taxable + tax
	if total < 0 {
		total = 0
	}
	return Summary{
		Subtotal: subtotal,
		Discount: off,
		Tax:      tax,
		Total:    total,
	}
}

// DiscountAmount resolves the discount for a subtotal, clamped to
// [0, subtotal] and to the coupon's cap when present.
func DiscountAmount(subtotal Money, d *Discount) Money {
	if d == nil || subtotal <= 0 {
		return 0
	}
	var off Money
	switch d.Kind {
	case DiscountPercent:
		if d.Value <= 0 {
			return 0
		}
		// Round half-up so a half-cent favours the customer-visible price
		// matching the advertised percentage.
		off = (subtotal*d.Value + 5000) / 10000
		if d.MaxAmount > 0 && off > d.MaxAmount {
			off = d.MaxAmount
		}
	case DiscountFixed:
		off = d.Value
	default:
		return 0
	}
	if off > subtotal {
		off = subtotal
	}
	if off < 0 {
		off = 0
	}
	return off
}
