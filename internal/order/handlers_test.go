package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/store"
)

type stubQuerier struct {
	order    store.Order
	orderErr error
	orders   []store.Order
	items    []store.OrderItem
}

func (s *stubQuerier) GetOrderForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error) {
	if s.orderErr != nil {
		return store.Order{}, s.orderErr
	}
	return s.order, nil
}

func (s *stubQuerier) GetOrderBySessionID(ctx context.Context, sessionID string) (store.Order, error) {
	if s.orderErr != nil {
		return store.Order{}, s.orderErr
	}
	return s.order, nil
}

func (s *stubQuerier) ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Order, error) {
	return s.orders, nil
}

func (s *stubQuerier) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error) {
	return s.items, nil
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", h.List)
	r.Get("/orders/{orderId}", h.Get)
	r.Get("/orders/by-session/{sessionId}", h.GetBySession)
	return r
}

func doAuthed(t *testing.T, h http.Handler, userID, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req = req.WithContext(common.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestGetRequiresAuth(t *testing.T) {
	h := newRouter(&Handler{Q: &stubQuerier{}})
	rec := doAuthed(t, h, "", "/orders/"+uuid.NewString())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetRejectsBadOrderID(t *testing.T) {
	h := newRouter(&Handler{Q: &stubQuerier{}})
	rec := doAuthed(t, h, uuid.NewString(), "/orders/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUnknownOrder(t *testing.T) {
	h := newRouter(&Handler{Q: &stubQuerier{orderErr: pgx.ErrNoRows}})
	rec := doAuthed(t, h, uuid.NewString(), "/orders/"+uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetReturnsOrderWithItems(t *testing.T) {
	userID := uuid.New()
	ord := store.Order{
		ID:       uuidToPg(uuid.New()),
		UserID:   uuidToPg(userID),
		Number:   42,
		Status:   store.OrderStatusCompleted,
		Currency: "usd",
		Subtotal: 10000,
		Discount: 1000,
		Tax:      0,
		Total:    9000,
	}
	items := []store.OrderItem{{OrderID: ord.ID, ProductID: uuidToPg(uuid.New()), Name: "Course", UnitPrice: 5000, Qty: 2, LineTotal: 10000}}
	h := newRouter(&Handler{Q: &stubQuerier{order: ord, items: items}})

	rec := doAuthed(t, h, userID.String(), "/orders/"+store.UUIDString(ord.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["number"] != "ORD-000042" {
		t.Fatalf("unexpected order number %v", data["number"])
	}
	if data["status"] != "completed" {
		t.Fatalf("unexpected status %v", data["status"])
	}
	lines, _ := data["items"].([]any)
	if len(lines) != 1 {
		t.Fatalf("expected 1 item, got %d", len(lines))
	}
}

func TestGetBySessionEnforcesOwnership(t *testing.T) {
	ord := store.Order{
		ID:     uuidToPg(uuid.New()),
		UserID: uuidToPg(uuid.New()),
		Status: store.OrderStatusPending,
		CheckoutSessionID: pgtype.Text{
			String: "cs_test_123", Valid: true,
		},
	}
	h := newRouter(&Handler{Q: &stubQuerier{order: ord}})

	rec := doAuthed(t, h, uuid.NewString(), "/orders/by-session/cs_test_123")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("another user's session lookup must 404, got %d", rec.Code)
	}
}

func TestGetBySessionReturnsOwnOrder(t *testing.T) {
	userID := uuid.New()
	ord := store.Order{
		ID:                uuidToPg(uuid.New()),
		UserID:            uuidToPg(userID),
		Status:            store.OrderStatusProcessing,
		CheckoutSessionID: pgtype.Text{String: "cs_test_123", Valid: true},
	}
	h := newRouter(&Handler{Q: &stubQuerier{order: ord}})

	rec := doAuthed(t, h, userID.String(), "/orders/by-session/cs_test_123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["checkoutSessionId"] != "cs_test_123" {
		t.Fatalf("unexpected session id %v", data["checkoutSessionId"])
	}
}

func TestListReturnsPage(t *testing.T) {
	userID := uuid.New()
	q := &stubQuerier{orders: []store.Order{
		{ID: uuidToPg(uuid.New()), UserID: uuidToPg(userID), Number: 2, Status: store.OrderStatusCompleted},
		{ID: uuidToPg(uuid.New()), UserID: uuidToPg(userID), Number: 1, Status: store.OrderStatusCancelled},
	}}
	h := newRouter(&Handler{Q: q})

	rec := doAuthed(t, h, userID.String(), "/orders?page=1&per_page=20")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(data))
	}
	first, _ := data[0].(map[string]any)
	if _, hasItems := first["items"]; hasItems {
		t.Fatal("list view must not include items")
	}
}
