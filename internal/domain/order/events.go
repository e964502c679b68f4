package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/emart-orders/internal/domain/auth"
)

// Event types written to the outbox.
const (
	EventCreated       = "order.created"
	EventStatusChanged = "order.status_changed"
	EventAssigned      = "order.assigned"
	EventPicked        = "order.picked"
	EventDelivered     = "order.delivered"
)

// Event is a domain event recorded in the same transaction as the change
// it describes and relayed to the message broker afterwards.
type Event struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	ShopID     string    `json:"shopId,omitempty"`
	From       Status    `json:"from,omitempty"`
	To         Status    `json:"to,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// Outbox stores events inside the caller's transaction.
type Outbox interface {
	Enqueue(ctx context.Context, e Event) error
}

// Sources of a status change.
const (
	SourceCheckout    = "checkout"
	SourceShop        = "shop"
	SourceFulfillment = "fulfillment"
)

// StatusChange is one entry of an order's audit trail.
type StatusChange struct {
	OrderID   string    `json:"orderId"`
	Source    string    `json:"source"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId"`
	ActorRole auth.Role `json:"actorRole"`
	At        time.Time `json:"at"`
}

// StatusLog is the append-only audit trail of status changes. It lives
// outside the transactional store; writes happen after commit.
type StatusLog interface {
	Record(ctx context.Context, c StatusChange) error
	List(ctx context.Context, orderID string) ([]StatusChange, error)
}

// AppendHistory records c after the change has been committed. The audit
// trail is not authoritative, so failures are logged and dropped.
func AppendHistory(ctx context.Context, log StatusLog, c StatusChange) {
	if log == nil {
		return
	}
	if err := log.Record(ctx, c); err != nil {
		zctx.From(ctx).Warn("Record status change",
			zap.String("order_id", c.OrderID),
			zap.String("to", c.To),
			zap.Error(err),
		)
	}
}
