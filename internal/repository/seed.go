package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/domain/product"
)

const (
	upsertUserSQL = `INSERT INTO users (id, name, email, role, is_active, has_shop)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role,
			is_active = EXCLUDED.is_active, has_shop = EXCLUDED.has_shop`

	upsertShopSQL = `INSERT INTO shops (id, owner_id, name, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id, name = EXCLUDED.name, is_active = EXCLUDED.is_active`

	upsertProductSQL = `INSERT INTO products (id, shop_id, name, price, offer_price, stock, is_active, available_colors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			shop_id = EXCLUDED.shop_id, name = EXCLUDED.name, price = EXCLUDED.price,
			offer_price = EXCLUDED.offer_price, stock = EXCLUDED.stock,
			is_active = EXCLUDED.is_active, available_colors = EXCLUDED.available_colors,
			updated_at = now()`

	// Coupons are keyed by their case-insensitive code.
	upsertCouponSQL = `INSERT INTO coupons (id, code, shop_id, discount_type, value, max_discount,
			start_date, end_date, min_order_amount, is_active, is_deleted)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET
			shop_id = EXCLUDED.shop_id, discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, max_discount = EXCLUDED.max_discount,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			min_order_amount = EXCLUDED.min_order_amount,
			is_active = EXCLUDED.is_active, is_deleted = EXCLUDED.is_deleted`
)

// Seeder writes reference data owned by other services: users, shops,
// products and coupons. It backs the seed and coupon import tools and the
// integration tests.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertUser inserts or replaces u. The agent picked flag is left alone.
func (s *Seeder) UpsertUser(ctx context.Context, u account.User) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, upsertUserSQL,
		u.ID, u.Name, u.Email, string(u.Role), u.IsActive, u.HasShop,
	); err != nil {
		return errors.Wrapf(err, "upsert user %s", u.ID)
	}
	return nil
}

// UpsertShop inserts or replaces sh.
func (s *Seeder) UpsertShop(ctx context.Context, sh account.Shop) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, upsertShopSQL,
		sh.ID, sh.OwnerID, sh.Name, sh.IsActive,
	); err != nil {
		return errors.Wrapf(err, "upsert shop %s", sh.ID)
	}
	return nil
}

// UpsertProduct inserts or replaces p.
func (s *Seeder) UpsertProduct(ctx context.Context, p product.Product) error {
	colors := p.AvailableColors
	if colors == nil {
		colors = []string{}
	}
	if _, err := conn(ctx, s.pool).Exec(ctx, upsertProductSQL,
		p.ID, p.ShopID, p.Name, p.Price, p.OfferPrice, p.Stock, p.IsActive, colors,
	); err != nil {
		return errors.Wrapf(err, "upsert product %s", p.ID)
	}
	return nil
}

// UpsertCoupons writes rules in a single round trip.
func (s *Seeder) UpsertCoupons(ctx context.Context, rules []coupon.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range rules {
		batch.Queue(upsertCouponSQL,
			c.ID, c.Code, c.ShopID, string(c.DiscountType), c.Value, c.MaxDiscount,
			c.StartDate, c.EndDate, c.MinOrderAmount, c.IsActive, c.IsDeleted,
		)
	}

	br := conn(ctx, s.pool).SendBatch(ctx, batch)
	for _, c := range rules {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "close batch")
	}
	return nil
}
