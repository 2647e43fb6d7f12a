package store

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// ProductKind distinguishes catalog entries for purchase-rule purposes.
type ProductKind string

const (
	// ProductKindSingle is an ordinary standalone product.
	ProductKindSingle ProductKind = "single"
	// ProductKindPackage is an individual package that is also part of the
	// all-inclusive bundle.
	ProductKindPackage ProductKind = "package"
	// ProductKindBundle is the all-inclusive bundle of every package.
	ProductKindBundle ProductKind = "bundle"
)

// CouponKind mirrors pricing discount kinds at the persistence layer.
type CouponKind string

const (
	CouponKindPercent CouponKind = "percent"
	CouponKindFixed   CouponKind = "fixed"
)

// Order is the persisted record of a purchase attempt. Monetary columns are
// minor currency units.
type Order struct {
	ID                pgtype.UUID
	UserID            pgtype.UUID
	Number            int64
	Status            OrderStatus
	Subtotal          int64
	Discount          int64
	Tax               int64
	Total             int64
	Currency          string
	CheckoutSessionID pgtype.Text
	PaymentIntentID   pgtype.Text
	CustomerName      string
	CustomerEmail     string
	CouponID          pgtype.UUID

	// Fulfillment extensions, populated on first completion.
	PartnerCouponCode      pgtype.Text
	PartnerCouponExpiresAt pgtype.Timestamptz
	PartnerCouponUsed      bool
	PartnerCouponUsedAt    pgtype.Timestamptz

	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// OrderItem snapshots a purchased line at order-creation time.
type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	UnitPrice int64
	Qty       int32
	LineTotal int64
}

// CartItem is an ephemeral line in a user's cart.
type CartItem struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	ProductID pgtype.UUID
	VariantID pgtype.Text
	Qty       int32
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// Product is the read-only catalog projection used by cart and checkout.
type Product struct {
	ID     pgtype.UUID
	Name   string
	Slug   string
	Kind   ProductKind
	Price  int64
	Active bool
}

// Coupon holds the discount rule and its usage accounting. Value is basis
// points for percent coupons and minor units for fixed-amount coupons.
type Coupon struct {
	ID          pgtype.UUID
	Code        string
	Kind        CouponKind
	Value       int64
	MinPurchase int64
	MaxDiscount pgtype.Int8
	AppliesTo   []pgtype.UUID
	UsageLimit  pgtype.Int4
	UsedCount   int32
	Active      bool
	ValidFrom   pgtype.Timestamptz
	ValidTo     pgtype.Timestamptz
}

// DomainEvent is a persisted fact about an aggregate.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
