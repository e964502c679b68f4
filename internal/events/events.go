// Package events relays outbox rows written by the order workflows to Kafka.
//
// Events are inserted into the outbox table in the same transaction as the
// change they describe. The Relay picks up unsent rows, publishes them and
// marks them sent, giving at-least-once delivery keyed by order id.
package events

import (
	"context"
	"time"
)

// Message is one outbox row.
type Message struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store reads and acknowledges outbox rows. Pending must lock the returned
// rows for the transaction in ctx so concurrent relays skip them.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, ids []int64) error
}

// Publisher delivers messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Transactor runs fn in a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
