package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/events"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`

	pendingOutboxSQL = `SELECT id, event_id, topic, key, payload, created_at FROM outbox
		WHERE sent_at IS NULL ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`
)

var (
	_ order.Outbox = (*OutboxRepository)(nil)
	_ events.Store = (*OutboxRepository)(nil)
)

// OutboxRepository stores domain events for the relay.
type OutboxRepository struct {
	pool  *pgxpool.Pool
	topic string
}

// NewOutboxRepository returns an OutboxRepository that files every order
// event under topic.
func NewOutboxRepository(pool *pgxpool.Pool, topic string) *OutboxRepository {
	return &OutboxRepository{pool: pool, topic: topic}
}

// Enqueue inserts e in the transaction carried by ctx. The order id is the
// partition key.
func (r *OutboxRepository) Enqueue(ctx context.Context, e order.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", e.Type, err)
	}
	_, err = conn(ctx, r.pool).Exec(ctx, insertOutboxSQL, uuid.NewString(), r.topic, e.OrderID, payload)
	if err != nil {
		return fmt.Errorf("inserting %s event: %w", e.Type, err)
	}
	return nil
}

// Pending returns up to limit unsent rows, skipping rows another relay
// holds.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]events.Message, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, pendingOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Message, error) {
		var m events.Message
		err := row.Scan(&m.ID, &m.EventID, &m.Topic, &m.Key, &m.Payload, &m.CreatedAt)
		return m, err
	})
}

// MarkSent acknowledges published rows.
func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, markOutboxSentSQL, ids); err != nil {
		return fmt.Errorf("marking events sent: %w", err)
	}
	return nil
}
