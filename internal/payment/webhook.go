package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/coupon"
	"github.com/papercrane/storefront/internal/events"
	"github.com/papercrane/storefront/internal/fulfillment"
	"github.com/papercrane/storefront/internal/lock"
	"github.com/papercrane/storefront/internal/obs"
	"github.com/papercrane/storefront/internal/store"
)

// maxWebhookBody bounds the raw payload read from the processor.
const maxWebhookBody = 64 * 1024

// StateQuerier is the order lookup and guarded-transition surface the state
// machine uses outside the completion transaction.
type StateQuerier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (store.Order, error)
	GetOrderByIntentID(ctx context.Context, intentID string) (store.Order, error)
	CancelOrder(ctx context.Context, orderID pgtype.UUID) (bool, error)
	RefundOrder(ctx context.Context, orderID pgtype.UUID) (bool, error)
}

// TxQuerier is the write set available inside the completing transaction: the
// guarded status flip plus the coupon-redemption and fulfillment writes that
// must commit or roll back with it.
type TxQuerier interface {
	CompleteOrder(ctx context.Context, orderID pgtype.UUID, intentID pgtype.Text) (bool, error)
	coupon.Querier
	fulfillment.Querier
}

// TxRunner opens a transaction, hands the callback a transaction-scoped
// querier, and commits when the callback returns nil.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q TxQuerier) error) error
}

// PoolRunner is the pgx-backed TxRunner used in production wiring.
type PoolRunner struct {
	Pool  *pgxpool.Pool
	Store *store.Store
}

func (r PoolRunner) InTx(ctx context.Context, fn func(ctx context.Context, q TxQuerier) error) error {
	if r.Pool == nil || r.Store == nil {
		return errors.New("transaction runner not configured")
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, r.Store.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WebhookHandler drives the order state machine from processor events.
// Deliveries are at-least-once and may race; every transition is a
// conditional update so duplicates observe zero rows and take the
// already-handled path.
type WebhookHandler struct {
	Q           StateQuerier
	DB          TxRunner
	Coupons     *coupon.Service
	Fulfillment *fulfillment.Dispatcher
	Events      *events.Bus
	Replay      ReplayGuard
	Secret      string
	Log         zerolog.Logger

	// Lock serialises concurrent deliveries for the same order. Optional:
	// the conditional updates stay authoritative, the lock just avoids
	// burning transactions on lost races.
	Lock    *lock.Locker
	LockTTL time.Duration

	// VerifyFn overrides signature verification in tests.
	VerifyFn func(payload []byte, header, secret string) (stripe.Event, error)
}

// Handle is the POST endpoint for processor events. 400 means the delivery
// can never succeed, 500 asks the processor to redeliver.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil || h.DB == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook handler not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read payload", nil)
		return
	}
	verify := h.VerifyFn
	if verify == nil {
		verify = func(payload []byte, header, secret string) (stripe.Event, error) {
			return webhook.ConstructEvent(payload, header, secret)
		}
	}
	event, err := verify(payload, r.Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		h.count("unknown", "invalid_signature")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed", nil)
		return
	}
	eventType := string(event.Type)

	if !h.Replay.FirstDelivery(r.Context(), event.ID) {
		h.Log.Debug().Str("event_id", event.ID).Str("type", eventType).Msg("duplicate webhook delivery skipped")
		h.count(eventType, "replay")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if err := h.process(r.Context(), event); err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500 {
			h.count(eventType, "rejected")
			common.WriteError(w, err)
			return
		}
		// Transient failure: release the replay guard so the redelivery is
		// not swallowed before it reaches the state machine.
		h.Replay.Forget(r.Context(), event.ID)
		h.count(eventType, "error")
		h.Log.Error().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("webhook processing failed")
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_ERROR", "event processing failed", nil)
		return
	}
	h.count(eventType, "ok")
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *WebhookHandler) process(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return common.ValidationError("BAD_REQUEST", "malformed checkout session payload", err)
		}
		order, err := h.orderBySession(ctx, session)
		if err != nil {
			return err
		}
		intentID := ""
		if session.PaymentIntent != nil {
			intentID = session.PaymentIntent.ID
		}
		return h.complete(ctx, order, intentID)
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return common.ValidationError("BAD_REQUEST", "malformed payment intent payload", err)
		}
		order, err := h.orderByIntent(ctx, intent)
		if err != nil {
			return err
		}
		return h.complete(ctx, order, intent.ID)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return common.ValidationError("BAD_REQUEST", "malformed payment intent payload", err)
		}
		order, err := h.orderByIntent(ctx, intent)
		if err != nil {
			return err
		}
		return h.cancel(ctx, order)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return common.ValidationError("BAD_REQUEST", "malformed charge payload", err)
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return common.ValidationError("BAD_REQUEST", "charge carries no payment intent reference", nil)
		}
		order, err := h.Q.GetOrderByIntentID(ctx, charge.PaymentIntent.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("no order for refunded charge", err)
			}
			return err
		}
		return h.refund(ctx, order)
	default:
		h.Log.Info().Str("type", string(event.Type)).Str("event_id", event.ID).Msg("ignoring unhandled webhook event")
		return nil
	}
}

// complete performs the guarded pending|processing → completed transition
// with its exactly-once side effects in one transaction.
func (h *WebhookHandler) complete(ctx context.Context, order store.Order, intentID string) error {
	if h.Lock != nil {
		key := "lock:order:" + store.UUIDString(order.ID)
		return h.Lock.WithLock(ctx, key, h.LockTTL, func(ctx context.Context) error {
			return h.completeTx(ctx, order, intentID)
		})
	}
	return h.completeTx(ctx, order, intentID)
}

func (h *WebhookHandler) completeTx(ctx context.Context, order store.Order, intentID string) error {
	var (
		completed bool
		result    fulfillment.Result
	)
	err := h.DB.InTx(ctx, func(ctx context.Context, qtx TxQuerier) error {
		var err error
		completed, err = qtx.CompleteOrder(ctx, order.ID, nullableText(intentID))
		if err != nil {
			return err
		}
		if !completed {
			// Duplicate delivery, a concurrent winner, or a late success on a
			// cancelled order. All collapse to the same no-op.
			h.Log.Debug().Str("order_id", store.UUIDString(order.ID)).Str("status", string(order.Status)).
				Msg("completion skipped, order not in a completable state")
			return nil
		}
		if order.CouponID.Valid && h.Coupons != nil {
			if err := h.Coupons.Redeem(ctx, qtx, order.CouponID, order.ID, order.UserID, order.Discount); err != nil {
				return err
			}
		}
		if h.Fulfillment != nil {
			result, err = h.Fulfillment.Apply(ctx, qtx, order)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if completed && h.Fulfillment != nil {
		h.Fulfillment.AfterComplete(ctx, order, result)
	}
	return nil
}

func (h *WebhookHandler) cancel(ctx context.Context, order store.Order) error {
	cancelled, err := h.Q.CancelOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if !cancelled {
		h.Log.Debug().Str("order_id", store.UUIDString(order.ID)).Msg("cancel skipped, order already terminal")
		return nil
	}
	h.emit(ctx, events.TopicPaymentFailed, order)
	return nil
}

func (h *WebhookHandler) refund(ctx context.Context, order store.Order) error {
	refunded, err := h.Q.RefundOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if !refunded {
		h.Log.Debug().Str("order_id", store.UUIDString(order.ID)).Msg("refund skipped, order not completed")
		return nil
	}
	h.emit(ctx, events.TopicOrderRefunded, order)
	return nil
}

func (h *WebhookHandler) orderBySession(ctx context.Context, session stripe.CheckoutSession) (store.Order, error) {
	if session.ID != "" {
		order, err := h.Q.GetOrderBySessionID(ctx, session.ID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, err
		}
	}
	if id := session.Metadata[MetadataOrderID]; id != "" {
		return h.orderByMetadataID(ctx, id)
	}
	return store.Order{}, common.NotFoundError("no order for checkout session", nil)
}

func (h *WebhookHandler) orderByIntent(ctx context.Context, intent stripe.PaymentIntent) (store.Order, error) {
	if intent.ID != "" {
		order, err := h.Q.GetOrderByIntentID(ctx, intent.ID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, err
		}
	}
	if id := intent.Metadata[MetadataOrderID]; id != "" {
		return h.orderByMetadataID(ctx, id)
	}
	return store.Order{}, common.NotFoundError("no order for payment intent", nil)
}

func (h *WebhookHandler) orderByMetadataID(ctx context.Context, id string) (store.Order, error) {
	oID, err := store.ToUUID(id)
	if err != nil {
		return store.Order{}, common.ValidationError("BAD_REQUEST", "malformed order id in event metadata", err)
	}
	order, err := h.Q.GetOrderByID(ctx, oID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, common.NotFoundError("order referenced by event metadata not found", err)
		}
		return store.Order{}, err
	}
	return order, nil
}

func (h *WebhookHandler) emit(ctx context.Context, topic string, order store.Order) {
	if h.Events == nil {
		return
	}
	if _, err := h.Events.Emit(ctx, topic, order.ID, map[string]any{
		"orderId": store.UUIDString(order.ID),
		"userId":  store.UUIDString(order.UserID),
		"email":   order.CustomerEmail,
		"status":  string(order.Status),
	}); err != nil {
		h.Log.Error().Err(err).Str("order_id", store.UUIDString(order.ID)).Str("topic", topic).Msg("emit order event")
	}
}

func (h *WebhookHandler) count(event, result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	obs.PaymentWebhookTotal.WithLabelValues(event, result).Inc()
}
