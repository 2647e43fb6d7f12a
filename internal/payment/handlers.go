package payment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/obs"
	"github.com/papercrane/storefront/internal/store"
)

// Handler exposes payment session creation and status polling.
type Handler struct {
	Svc *Service
}

// CreateSession opens (or reuses) the payment session for a pending order.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.OrderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	session, err := h.Svc.CreateSession(r.Context(), userID, payload.OrderID, r.Header.Get("Idempotency-Key"))
	if err != nil {
		countSession("error")
		writeServiceError(w, err)
		return
	}
	countSession("ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": session})
}

// Status answers the success-page poll for an order's payment state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Status(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if common.IsAppError(err) {
		common.WriteError(w, err)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process payment request", nil)
}

func countSession(result string) {
	if obs.PaymentSessionTotal == nil {
		return
	}
	obs.PaymentSessionTotal.WithLabelValues(result).Inc()
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
