package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/listing"
	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/domain/payment"
)

const (
	orderColumns = `o.id, o.user_id, o.shop_id, o.items, COALESCE(o.coupon_id, ''),
		o.total_amount, o.discount, o.delivery_charge, o.final_amount, o.status,
		o.shipping_address, o.payment_method, o.payment_status,
		COALESCE(o.assignment_id, ''), o.created_at, o.updated_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, shop_id, items, coupon_id,
		total_amount, discount, delivery_charge, final_amount, status,
		shipping_address, payment_method, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	setOrderStatusSQL     = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
	setOrderAssignmentSQL = `UPDATE orders SET assignment_id = $2, updated_at = now() WHERE id = $1`
	markDeliveredSQL      = `UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`

	orderListFrom = ` FROM orders o JOIN users u ON u.id = o.user_id`
)

// orderFilterColumns maps listing filter fields to columns.
var orderFilterColumns = map[string]string{
	"status":        "o.status",
	"paymentStatus": "o.payment_status",
	"paymentMethod": "o.payment_method",
}

var orderSortColumns = map[string]string{
	"createdAt":   "o.created_at",
	"updatedAt":   "o.updated_at",
	"finalAmount": "o.final_amount",
	"totalAmount": "o.total_amount",
	"status":      "o.status",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and the shipping address are stored as
// JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.ShopID, itemsJSON, o.CouponID,
		o.TotalAmount, o.Discount, o.DeliveryCharge, o.FinalAmount, string(o.Status),
		addrJSON, string(o.PaymentMethod), string(o.PaymentStatus), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order by id or order.ErrOrderNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetForUpdate returns an order and locks its row for the transaction in ctx.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns one page of orders in scope together with the total number
// of matching rows.
func (r *OrderRepository) List(ctx context.Context, scope order.Scope, q listing.Query) ([]order.Summary, int, error) {
	where, args := orderListWhere(scope, q)
	db := conn(ctx, r.pool)

	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*)`+orderListFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	if total == 0 {
		return []order.Summary{}, 0, nil
	}

	args = append(args, q.Limit, q.Offset())
	sql := `SELECT ` + orderColumns + `, u.name, u.email` + orderListFrom + where +
		orderListOrderBy(q.Sort) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderSummary)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return items, total, nil
}

// SetStatus updates the order status.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status order.Status) error {
	return r.update(ctx, setOrderStatusSQL, id, string(status))
}

// SetAssignment links the order to its delivery assignment.
func (r *OrderRepository) SetAssignment(ctx context.Context, id, assignmentID string) error {
	return r.update(ctx, setOrderAssignmentSQL, id, assignmentID)
}

// MarkDelivered completes the order and marks it paid.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id string) error {
	return r.update(ctx, markDeliveredSQL, id, string(order.StatusCompleted), string(payment.StatusPaid))
}

func (r *OrderRepository) update(ctx context.Context, sql, id string, args ...any) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// orderListWhere builds the WHERE clause shared by the count and page
// queries. Filter fields outside orderFilterColumns are skipped; the
// listing parser has already rejected them.
func orderListWhere(scope order.Scope, q listing.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if scope.UserID != "" {
		add("o.user_id = $%d", scope.UserID)
	}
	if scope.ShopID != "" {
		add("o.shop_id = $%d", scope.ShopID)
	}
	for _, field := range slices.Sorted(maps.Keys(q.Filters)) {
		col, ok := orderFilterColumns[field]
		if !ok {
			continue
		}
		add(col+" = $%d", q.Filters[field])
	}
	if q.Search != "" {
		add(`(u.name ILIKE $%[1]d OR u.email ILIKE $%[1]d OR EXISTS (
			SELECT 1 FROM jsonb_array_elements(o.items) AS it
			JOIN products p ON p.id = it->>'product'
			WHERE p.name ILIKE $%[1]d))`, "%"+escapeLike(q.Search)+"%")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderListOrderBy renders sort keys, defaulting to newest first. The id
// tiebreaker keeps pagination stable.
func orderListOrderBy(keys []listing.SortKey) string {
	terms := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		col, ok := orderSortColumns[k.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		terms = append(terms, col+" "+dir)
	}
	if len(terms) == 0 {
		terms = append(terms, "o.created_at DESC")
	}
	terms = append(terms, "o.id ASC")
	return " ORDER BY " + strings.Join(terms, ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(orderDest(&o)...)
	return o, err
}

func scanOrderSummary(row pgx.CollectableRow) (order.Summary, error) {
	var s order.Summary
	err := row.Scan(append(orderDest(&s.Order), &s.CustomerName, &s.CustomerEmail)...)
	return s, err
}

// orderDest returns scan targets matching orderColumns. Text enums scan
// through string-kinded types and JSONB through pgx's JSON codec.
func orderDest(o *order.Order) []any {
	return []any{
		&o.ID, &o.UserID, &o.ShopID, &o.Items, &o.CouponID,
		&o.TotalAmount, &o.Discount, &o.DeliveryCharge, &o.FinalAmount, &o.Status,
		&o.ShippingAddress, &o.PaymentMethod, &o.PaymentStatus,
		&o.AssignmentID, &o.CreatedAt, &o.UpdatedAt,
	}
}
