package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/papercrane/storefront/internal/cart"
	"github.com/papercrane/storefront/internal/catalog"
	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/coupon"
	"github.com/papercrane/storefront/internal/events"
	"github.com/papercrane/storefront/internal/pricing"
	"github.com/papercrane/storefront/internal/store"
)

// Customer is the contact info captured at checkout.
type Customer struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email" validate:"required,email"`
}

// Input drives a cart checkout.
type Input struct {
	Customer   Customer `json:"customer"`
	CouponCode string   `json:"couponCode"`
}

// ExpressInput drives a single-product checkout.
type ExpressInput struct {
	ProductID  string   `json:"productId" validate:"required,uuid4"`
	Qty        int      `json:"qty"`
	Customer   Customer `json:"customer"`
	CouponCode string   `json:"couponCode"`
}

// Output is the created order summary returned to the client.
type Output struct {
	OrderID  string       `json:"orderId"`
	Number   string       `json:"number"`
	Status   string       `json:"status"`
	Currency string       `json:"currency"`
	Pricing  OutputTotals `json:"pricing"`
	Items    []OutputItem `json:"items"`
}

type OutputTotals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

type OutputItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Qty       int32  `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

// Service builds orders out of carts or single products. Order and item rows
// are written in one transaction; the cart is cleared only after that
// transaction commits.
type Service struct {
	Pool      *pgxpool.Pool
	Store     *store.Store
	Cart      *cart.Service
	Catalog   *catalog.Service
	Coupons   *coupon.Service
	Events    *events.Bus
	TaxBps    int
	Currency  string
	MinCharge int64
	Log       zerolog.Logger
}

// Create assembles an order from the user's cart.
func (s *Service) Create(ctx context.Context, userID pgtype.UUID, in Input) (Output, error) {
	if s == nil || s.Pool == nil || s.Store == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	snap, err := s.Cart.GetSnapshot(ctx, userID)
	if err != nil {
		return Output{}, err
	}
	if len(snap.Lines) == 0 {
		return Output{}, common.ValidationError("EMPTY_CART", "cart is empty", nil)
	}
	out, err := s.build(ctx, userID, snap.Lines, in.Customer, in.CouponCode)
	if err != nil {
		return Output{}, err
	}
	// Cart clearing is best-effort once the order row is durable; a stale
	// cart is recoverable, a lost order is not.
	if err := s.Cart.Clear(ctx, userID); err != nil {
		s.Log.Error().Err(err).Str("order_id", out.OrderID).Msg("clear cart after checkout")
	}
	return out, nil
}

// CreateExpress assembles a one-item order for a "buy now" purchase. Bundle
// and package ownership guards run before anything is persisted.
func (s *Service) CreateExpress(ctx context.Context, userID pgtype.UUID, in ExpressInput) (Output, error) {
	if s == nil || s.Pool == nil || s.Store == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if in.Qty == 0 {
		in.Qty = 1
	}
	if in.Qty < 1 || in.Qty > cart.MaxLineQty {
		return Output{}, common.ValidationError("BAD_REQUEST", fmt.Sprintf("qty must be between 1 and %d", cart.MaxLineQty), nil)
	}
	pID, err := store.ToUUID(in.ProductID)
	if err != nil {
		return Output{}, common.ValidationError("BAD_REQUEST", "invalid product id", err)
	}
	product, err := s.Catalog.GetForPurchase(ctx, pID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Output{}, common.NotFoundError("product not found", err)
		}
		return Output{}, err
	}
	if err := s.Catalog.CheckExpressPurchase(ctx, userID, product); err != nil {
		switch {
		case errors.Is(err, catalog.ErrAlreadyOwned),
			errors.Is(err, catalog.ErrAlreadyOwnsBundle),
			errors.Is(err, catalog.ErrOwnsAllPackages):
			return Output{}, common.ValidationError("ALREADY_OWNED", err.Error(), err)
		default:
			return Output{}, err
		}
	}
	line := cart.Line{
		Item:    store.CartItem{ProductID: product.ID, Qty: int32(in.Qty)},
		Product: product,
	}
	return s.build(ctx, userID, []cart.Line{line}, in.Customer, in.CouponCode)
}

// build runs the shared pipeline: validate products, price the cart, persist
// order + items atomically, then emit order.created.
func (s *Service) build(ctx context.Context, userID pgtype.UUID, lines []cart.Line, customer Customer, couponCode string) (Output, error) {
	productIDs := make([]pgtype.UUID, 0, len(lines))
	pricingItems := make([]pricing.Item, 0, len(lines))
	for _, line := range lines {
		if !line.Product.Active {
			return Output{}, common.ValidationError("PRODUCT_UNAVAILABLE",
				fmt.Sprintf("%s is no longer available", line.Product.Name), nil)
		}
		productIDs = append(productIDs, line.Product.ID)
		pricingItems = append(pricingItems, pricing.Item{Qty: int(line.Item.Qty), UnitPrice: pricing.Money(line.Product.Price)})
	}

	var subtotal int64
	for _, it := range pricingItems {
		subtotal += int64(it.Qty) * it.UnitPrice
	}
	var discount *pricing.Discount
	couponID := pgtype.UUID{}
	if couponCode != "" {
		c, err := s.Coupons.Validate(ctx, couponCode, subtotal, productIDs)
		if err != nil {
			if coupon.IsRejection(err) {
				return Output{}, common.ValidationError("INVALID_COUPON", err.Error(), err)
			}
			return Output{}, err
		}
		couponID = c.ID
		discount = coupon.RuleFromModel(c).Discount()
	}
	summary := pricing.Compute(pricingItems, discount, s.TaxBps)
	if summary.Total < s.MinCharge {
		return Output{}, common.ValidationError("AMOUNT_TOO_SMALL",
			fmt.Sprintf("order total is below the minimum chargeable amount (%d)", s.MinCharge), nil)
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Store.WithTx(tx)
	order, err := qtx.CreateOrder(ctx, store.CreateOrderParams{
		UserID:        userID,
		Subtotal:      summary.Subtotal,
		Discount:      summary.Discount,
		Tax:           summary.Tax,
		Total:         summary.Total,
		Currency:      s.Currency,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CouponID:      couponID,
	})
	if err != nil {
		return Output{}, err
	}
	items := make([]OutputItem, 0, len(lines))
	for _, line := range lines {
		lineTotal := int64(line.Item.Qty) * line.Product.Price
		if err := qtx.CreateOrderItem(ctx, store.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			UnitPrice: line.Product.Price,
			Qty:       line.Item.Qty,
			LineTotal: lineTotal,
		}); err != nil {
			return Output{}, err
		}
		items = append(items, OutputItem{
			ProductID: store.UUIDString(line.Product.ID),
			Name:      line.Product.Name,
			Qty:       line.Item.Qty,
			UnitPrice: line.Product.Price,
			LineTotal: lineTotal,
		})
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, err
	}

	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, order.ID, map[string]any{
			"orderId": store.UUIDString(order.ID),
			"userId":  store.UUIDString(userID),
			"email":   customer.Email,
			"total":   summary.Total,
		}); err != nil {
			s.Log.Error().Err(err).Str("order_id", store.UUIDString(order.ID)).Msg("emit order created")
		}
	}

	return Output{
		OrderID:  store.UUIDString(order.ID),
		Number:   FormatNumber(order.Number),
		Status:   string(order.Status),
		Currency: order.Currency,
		Pricing: OutputTotals{
			Subtotal: summary.Subtotal,
			Discount: summary.Discount,
			Tax:      summary.Tax,
			Total:    summary.Total,
		},
		Items: items,
	}, nil
}

// FormatNumber renders the sequential order number for humans.
func FormatNumber(n int64) string {
	return fmt.Sprintf("ORD-%06d", n)
}
