package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/payment"
)

const (
	createPaymentSQL = `INSERT INTO payments (id, user_id, shop_id, order_id, method,
		transaction_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	getPaymentByOrderSQL = `SELECT id, user_id, shop_id, order_id, method, transaction_id,
		amount, status, created_at, updated_at
		FROM payments WHERE order_id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a payment record.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createPaymentSQL,
		p.ID, p.UserID, p.ShopID, p.OrderID, string(p.Method),
		p.TransactionID, p.Amount, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, err)
	}
	return nil
}

// FindByOrder returns the payment of an order or payment.ErrNotFound.
func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getPaymentByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (payment.Payment, error) {
		var p payment.Payment
		err := row.Scan(
			&p.ID, &p.UserID, &p.ShopID, &p.OrderID, &p.Method, &p.TransactionID,
			&p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		)
		return p, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	return &p, nil
}
