package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/checkout"
	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/store"
)

// Querier captures the reads served by the order API.
type Querier interface {
	GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (store.Order, error)
	ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
}

// Handler serves owner-scoped order reads: detail, success-page poll by
// payment session, and history listing.
type Handler struct {
	Q Querier
}

// Get returns one order with its items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order queries not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	oID, err := store.ToUUID(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, err := h.Q.GetOrderForUser(r.Context(), oID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	h.respondWithItems(w, r, ord)
}

// GetBySession resolves an order by its payment session reference. Ownership
// is still enforced: a session id alone does not expose another user's order.
func (h *Handler) GetBySession(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order queries not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "session id is required", nil)
		return
	}
	ord, err := h.Q.GetOrderBySessionID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	if !store.UUIDEqual(ord.UserID, userID) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	h.respondWithItems(w, r, ord)
}

// List returns a page of the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order queries not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	orders, err := h.Q.ListOrdersByUser(r.Context(), userID, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load orders", nil)
		return
	}
	views := make([]map[string]any, 0, len(orders))
	for _, ord := range orders {
		views = append(views, orderView(ord, nil))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"meta": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(views)},
	})
}

func (h *Handler) respondWithItems(w http.ResponseWriter, r *http.Request, ord store.Order) {
	items, err := h.Q.ListOrderItems(r.Context(), ord.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order items", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orderView(ord, items)})
}

func orderView(ord store.Order, items []store.OrderItem) map[string]any {
	view := map[string]any{
		"id":       store.UUIDString(ord.ID),
		"number":   checkout.FormatNumber(ord.Number),
		"status":   string(ord.Status),
		"currency": ord.Currency,
		"pricing": map[string]any{
			"subtotal": ord.Subtotal,
			"discount": ord.Discount,
			"tax":      ord.Tax,
			"total":    ord.Total,
		},
		"customer": map[string]any{
			"name":  ord.CustomerName,
			"email": ord.CustomerEmail,
		},
	}
	if ord.CreatedAt.Valid {
		view["createdAt"] = ord.CreatedAt.Time
	}
	if ord.CheckoutSessionID.Valid {
		view["checkoutSessionId"] = ord.CheckoutSessionID.String
	}
	if ord.PartnerCouponCode.Valid {
		partner := map[string]any{
			"code": ord.PartnerCouponCode.String,
			"used": ord.PartnerCouponUsed,
		}
		if ord.PartnerCouponExpiresAt.Valid {
			partner["expiresAt"] = ord.PartnerCouponExpiresAt.Time
		}
		if ord.PartnerCouponUsedAt.Valid {
			partner["usedAt"] = ord.PartnerCouponUsedAt.Time
		}
		view["partnerCoupon"] = partner
	}
	if items != nil {
		lines := make([]map[string]any, 0, len(items))
		for _, it := range items {
			lines = append(lines, map[string]any{
				"productId": store.UUIDString(it.ProductID),
				"name":      it.Name,
				"qty":       it.Qty,
				"unitPrice": it.UnitPrice,
				"lineTotal": it.LineTotal,
			})
		}
		view["items"] = lines
	}
	return view
}

func requireUser(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	uID, ok := common.UserID(r.Context())
	if !ok || uID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return pgtype.UUID{}, false
	}
	id, err := store.ToUUID(uID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user identity", nil)
		return pgtype.UUID{}, false
	}
	return id, true
}
