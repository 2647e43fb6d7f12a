package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/obs"
	"github.com/papercrane/storefront/internal/store"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Checkout creates an order from the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload.Customer); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	out, err := h.Svc.Create(r.Context(), userID, payload)
	if err != nil {
		countCheckout("cart", "error")
		h.writeError(w, err)
		return
	}
	countCheckout("cart", "ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// Express creates a one-item order for a single product.
func (h *Handler) Express(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload ExpressInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.ProductID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	if err := h.validate(payload.Customer); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	out, err := h.Svc.CreateExpress(r.Context(), userID, payload)
	if err != nil {
		countCheckout("express", "error")
		h.writeError(w, err)
		return
	}
	countCheckout("express", "ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) validate(customer Customer) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(customer)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil || common.IsAppError(err) {
		common.WriteError(w, err)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to complete checkout", nil)
}

func countCheckout(flow, result string) {
	if obs.CheckoutTotal == nil {
		return
	}
	obs.CheckoutTotal.WithLabelValues(flow, result).Inc()
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
