// Package events publishes order lifecycle events to RabbitMQ.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/internal/order"
)

const (
	DefaultExchange = "liraku.orders"

	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

// OrderPayload is the order snapshot carried by every event.
type OrderPayload struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"user_id"`
	Flow         order.Flow      `json:"flow"`
	Method       order.Method    `json:"method"`
	Status       order.Status    `json:"status"`
	SourceAmount decimal.Decimal `json:"source_amount"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	Fee          decimal.Decimal `json:"fee"`
	Total        decimal.Decimal `json:"total"`
	QuotedRate   decimal.Decimal `json:"quoted_rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Event is the JSON body of a published message. Type doubles as the routing key.
type Event struct {
	ID             uuid.UUID    `json:"event_id"`
	Type           string       `json:"type"`
	OccurredAt     time.Time    `json:"occurred_at"`
	Order          OrderPayload `json:"order"`
	PreviousStatus order.Status `json:"previous_status,omitempty"`
	Source         string       `json:"source,omitempty"`
}

func payload(o order.Order) OrderPayload {
	return OrderPayload{
		ID:           o.ID,
		UserID:       o.UserID,
		Flow:         o.Flow,
		Method:       o.Method,
		Status:       o.Status,
		SourceAmount: o.SourceAmount,
		TargetAmount: o.TargetAmount,
		Fee:          o.Fee,
		Total:        o.Total,
		QuotedRate:   o.QuotedRate,
		CreatedAt:    o.CreatedAt,
	}
}

// OrderCreated builds the event for a newly accepted order.
func OrderCreated(o order.Order, at time.Time) Event {
	return Event{ID: uuid.New(), Type: TypeOrderCreated, OccurredAt: at, Order: payload(o)}
}

// StatusChanged builds the event for a status transition from prev.
func StatusChanged(o order.Order, prev order.Status, source string, at time.Time) Event {
	return Event{
		ID:             uuid.New(),
		Type:           TypeOrderStatusChanged,
		OccurredAt:     at,
		Order:          payload(o),
		PreviousStatus: prev,
		Source:         source,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop drops events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, ev Event) error {
	logger.Debug(ctx, logger.CompEvents, "events.skip",
		slog.String("status", "skip"),
		slog.String("type", ev.Type),
		slog.String("order_id", ev.Order.ID))
	return nil
}

func (Noop) Close() error { return nil }
