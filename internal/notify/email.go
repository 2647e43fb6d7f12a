package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/papercrane/storefront/internal/common"
	"github.com/papercrane/storefront/internal/events"
	"github.com/papercrane/storefront/internal/obs"
	"github.com/papercrane/storefront/internal/queue"
	"github.com/papercrane/storefront/internal/store"
)

// TaskKindEmail is the queue kind carrying transactional email jobs.
const TaskKindEmail = "notify:email"

// EmailTask is the queue payload for one transactional email.
type EmailTask struct {
	Topic      string         `json:"topic"`
	To         string         `json:"to"`
	OrderID    string         `json:"orderId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// QueueNotifier turns domain events into queued email tasks. Enqueue failure
// is reported to the bus but never blocks the emitting transition; the queue
// retries delivery with bounded attempts on its own.
type QueueNotifier struct {
	Enqueuer     queue.Enqueuer
	MaxAttempts  int
	TopicToggles map[string]bool
	Log          zerolog.Logger
}

// Notify implements events.Notifier.
func (n QueueNotifier) Notify(ctx context.Context, event store.DomainEvent) error {
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	task := EmailTask{
		Topic: event.Topic,
		To:    to,
		Data:  payload,
	}
	if orderID, ok := payload["orderId"].(string); ok {
		task.OrderID = orderID
	}
	if event.OccurredAt.Valid {
		task.OccurredAt = event.OccurredAt.Time
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("email notify: encode task: %w", err)
	}
	err = n.Enqueuer.Enqueue(ctx, queue.Task{
		Kind:           TaskKindEmail,
		Payload:        raw,
		IdempotencyKey: fmt.Sprintf("%s:%s", event.Topic, store.UUIDString(event.AggregateID)),
		MaxAttempts:    n.MaxAttempts,
	})
	if err != nil {
		countEmail("enqueue_error")
		n.Log.Error().Err(err).Str("topic", event.Topic).Msg("enqueue email task")
		return fmt.Errorf("email notify: enqueue: %w", err)
	}
	countEmail("enqueued")
	return nil
}

// EmailTaskHandler is the worker-side consumer for email tasks.
type EmailTaskHandler struct {
	Mail common.EmailSender
	From string
	Log  zerolog.Logger
}

// Handle sends one queued email. Returning an error lets the queue retry up
// to the task's attempt budget before dead-lettering.
func (h EmailTaskHandler) Handle(ctx context.Context, t queue.Task) error {
	if h.Mail == nil {
		return nil
	}
	var task EmailTask
	if err := json.Unmarshal(t.Payload, &task); err != nil {
		// Undecodable payloads would fail every retry; drop them loudly.
		h.Log.Error().Err(err).Str("kind", t.Kind).Msg("discarding malformed email task")
		countEmail("malformed")
		return nil
	}
	if task.To == "" {
		return nil
	}
	if err := h.Mail.Send(task.To, subjectFor(task.Topic), bodyFor(task)); err != nil {
		countEmail("send_error")
		return fmt.Errorf("send email: %w", err)
	}
	countEmail("sent")
	return nil
}

func extractRecipient(payload map[string]any) string {
	for _, key := range []string{"email", "recipient", "customerEmail"} {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "We received your order"
	case events.TopicOrderCompleted:
		return "Your order is ready"
	case events.TopicOrderCancelled:
		return "Your order was cancelled"
	case events.TopicOrderRefunded:
		return "Your order was refunded"
	case events.TopicPaymentFailed:
		return "Payment failed"
	default:
		return fmt.Sprintf("Order update: %s", topic)
	}
}

func bodyFor(task EmailTask) string {
	var b strings.Builder
	switch task.Topic {
	case events.TopicOrderCompleted:
		b.WriteString("Thanks for your purchase! Your order is complete and your products are available in your account.")
		if code, ok := task.Data["partnerCoupon"].(string); ok && code != "" {
			fmt.Fprintf(&b, "\n\nYour partner discount code: %s", code)
			if exp, ok := task.Data["partnerCouponExpiresAt"].(string); ok && exp != "" {
				fmt.Fprintf(&b, " (valid until %s)", exp)
			}
		}
	case events.TopicOrderCreated:
		b.WriteString("We received your order and are waiting for your payment to complete.")
	case events.TopicPaymentFailed:
		b.WriteString("Your payment did not go through and the order was cancelled. You can try again at any time.")
	case events.TopicOrderRefunded:
		b.WriteString("Your order has been refunded. The amount will appear on your statement within a few days.")
	default:
		fmt.Fprintf(&b, "There is an update on your order: %s.", task.Topic)
	}
	if task.OrderID != "" {
		fmt.Fprintf(&b, "\n\nOrder reference: %s", task.OrderID)
	}
	return b.String()
}

func countEmail(result string) {
	if obs.EmailQueueTotal == nil {
		return
	}
	obs.EmailQueueTotal.WithLabelValues(result).Inc()
}
