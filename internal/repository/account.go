package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/emart-orders/internal/domain/account"
)

const (
	userColumns = `id, name, email, role, is_active, has_shop, picked`

	getUserSQL          = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserForUpdateSQL = getUserSQL + ` FOR UPDATE`
	setPickedSQL        = `UPDATE users SET picked = $2 WHERE id = $1`

	shopColumns = `id, owner_id, name, is_active`

	getShopSQL        = `SELECT ` + shopColumns + ` FROM shops WHERE id = $1`
	getShopByOwnerSQL = `SELECT ` + shopColumns + ` FROM shops
		WHERE owner_id = $1 AND is_active = TRUE ORDER BY created_at LIMIT 1`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository reads users and shops from PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) GetUser(ctx context.Context, id string) (*account.User, error) {
	return r.getUser(ctx, getUserSQL, id)
}

// GetUserForUpdate locks the user row so concurrent pickups by one agent
// serialize on it.
func (r *AccountRepository) GetUserForUpdate(ctx context.Context, id string) (*account.User, error) {
	return r.getUser(ctx, getUserForUpdateSQL, id)
}

func (r *AccountRepository) getUser(ctx context.Context, sql, id string) (*account.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (account.User, error) {
		var u account.User
		err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsActive, &u.HasShop, &u.Picked)
		return u, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

func (r *AccountRepository) SetPicked(ctx context.Context, userID string, picked bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setPickedSQL, userID, picked)
	if err != nil {
		return fmt.Errorf("setting picked for %q: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

func (r *AccountRepository) GetShop(ctx context.Context, id string) (*account.Shop, error) {
	s, err := r.getShop(ctx, getShopSQL, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrShopNotFound
	}
	return s, err
}

// FindActiveShopByOwner returns the owner's oldest active shop.
func (r *AccountRepository) FindActiveShopByOwner(ctx context.Context, ownerID string) (*account.Shop, error) {
	s, err := r.getShop(ctx, getShopByOwnerSQL, ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrShopInactive
	}
	return s, err
}

func (r *AccountRepository) getShop(ctx context.Context, sql, arg string) (*account.Shop, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting shop %q: %w", arg, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (account.Shop, error) {
		var s account.Shop
		err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.IsActive)
		return s, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("getting shop %q: %w", arg, err)
	}
	return &s, nil
}
