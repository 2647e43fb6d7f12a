package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/pricing"
	"github.com/papercrane/storefront/internal/store"
)

// Handler wires the cart service to HTTP. All routes require an
// authenticated user.
type Handler struct {
	Svc      *Service
	TaxBps   int
	Currency string
}

// Get returns cart contents with a pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	snap, err := h.Svc.GetSnapshot(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(snap.Lines))
	pricingItems := make([]pricing.Item, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		items = append(items, map[string]any{
			"id":        store.UUIDString(line.Item.ID),
			"productId": store.UUIDString(line.Item.ProductID),
			"variantId": nullableText(line.Item.VariantID),
			"name":      line.Product.Name,
			"slug":      line.Product.Slug,
			"kind":      line.Product.Kind,
			"qty":       line.Item.Qty,
			"unitPrice": line.Product.Price,
			"subtotal":  int64(line.Item.Qty) * line.Product.Price,
		})
		pricingItems = append(pricingItems, pricing.Item{Qty: int(line.Item.Qty), UnitPrice: pricing.Money(line.Product.Price)})
	}
	summary := pricing.Compute(pricingItems, nil, h.TaxBps)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"items": items,
			"pricing": map[string]any{
				"subtotal": summary.Subtotal,
				"discount": summary.Discount,
				"tax":      summary.Tax,
				"total":    summary.Total,
			},
			"currency": h.Currency,
		},
	})
}

// AddItem adds or increments a cart line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID string  `json:"productId"`
		VariantID *string `json:"variantId"`
		Qty       int     `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.ProductID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	if payload.Qty == 0 {
		payload.Qty = 1
	}
	item, err := h.Svc.AddItem(r.Context(), userID, payload.ProductID, payload.VariantID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"id":        store.UUIDString(item.ID),
			"productId": store.UUIDString(item.ProductID),
			"qty":       item.Qty,
		},
	})
}

// UpdateItem updates the quantity of a cart line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemId")
	var payload struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.UpdateQty(r.Context(), userID, itemID, payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.Get(w, r)
}

// RemoveItem deletes a cart line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemId")
	if err := h.Svc.RemoveItem(r.Context(), userID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	h.Get(w, r)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"items": []any{}}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart request", nil)
	}
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

func nullableText(v pgtype.Text) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
