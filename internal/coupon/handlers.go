package coupon

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/cart"
	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/pricing"
	"github.com/papercrane/storefront/internal/store"
)

// Handler serves the coupon dry-run preview against the caller's cart.
type Handler struct {
	Svc  *Service
	Cart *cart.Service
}

// Preview validates a code against the current cart and reports the discount
// it would produce. Nothing is persisted.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Cart == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	uID, ok := common.UserID(r.Context())
	if !ok || uID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	userID, err := store.ToUUID(uID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user identity", nil)
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Code = strings.TrimSpace(payload.Code)
	if payload.Code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	snap, err := h.Cart.GetSnapshot(r.Context(), userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load cart", nil)
		return
	}
	productIDs := make([]pgtype.UUID, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		productIDs = append(productIDs, line.Product.ID)
	}
	c, err := h.Svc.Validate(r.Context(), payload.Code, snap.Subtotal, productIDs)
	if err != nil {
		if IsRejection(err) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_COUPON", err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to validate coupon", nil)
		return
	}
	discount := pricing.DiscountAmount(snap.Subtotal, RuleFromModel(c).Discount())
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"code":     c.Code,
			"discount": discount,
			"subtotal": snap.Subtotal,
			"total":    snap.Subtotal - discount,
		},
	})
}
