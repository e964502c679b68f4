package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/coupon"
)

const (
	couponColumns = `id, code, COALESCE(shop_id, ''), discount_type, value, max_discount,
		start_date, end_date, min_order_amount, is_active, is_deleted`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1) AND is_deleted = FALSE`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a non-deleted coupon by its code (case-insensitive).
// Inactive coupons are returned; the caller decides whether they discount.
// Returns coupon.ErrInvalidCoupon when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	return r.getOne(ctx, getCouponByCodeSQL, code)
}

// GetByID returns a coupon by id, including deleted ones, so historical
// orders still resolve their coupon.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Rule, error) {
	return r.getOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) getOne(ctx context.Context, sql, arg string) (*coupon.Rule, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	return &rule, nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		c            coupon.Rule
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.ShopID, &discountType, &c.Value, &c.MaxDiscount,
		&c.StartDate, &c.EndDate, &c.MinOrderAmount, &c.IsActive, &c.IsDeleted,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
