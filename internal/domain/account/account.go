// Package account holds the user and shop records the order workflow reads.
// Their CRUD lives elsewhere; this service only checks status flags and
// toggles an agent's active-pickup flag.
package account

import (
	"context"

	"github.com/xenking/emart-orders/internal/domain/apperr"
	"github.com/xenking/emart-orders/internal/domain/auth"
)

var (
	ErrUserNotFound = apperr.New(apperr.KindNotFound, "user not found")
	ErrUserInactive = apperr.New(apperr.KindValidation, "user account is not active")
	ErrNoShop       = apperr.New(apperr.KindValidation, "user does not have any shop")
	ErrShopInactive = apperr.New(apperr.KindValidation, "shop is not active")
	ErrNotAgent     = apperr.New(apperr.KindValidation, "user is not a delivery agent")
	ErrShopNotFound = apperr.New(apperr.KindNotFound, "shop not found")
)

// User is a customer, shop owner, admin or delivery agent.
type User struct {
	ID       string
	Name     string
	Email    string
	Role     auth.Role
	IsActive bool
	HasShop  bool
	// Picked is set while an agent carries an order. It is written only by
	// the fulfillment workflow.
	Picked bool
}

// Shop is a vendor storefront owned by one user.
type Shop struct {
	ID       string
	OwnerID  string
	Name     string
	IsActive bool
}

// Repository reads users and shops.
type Repository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	// GetUserForUpdate locks the user row for the surrounding transaction.
	GetUserForUpdate(ctx context.Context, id string) (*User, error)
	SetPicked(ctx context.Context, userID string, picked bool) error
	GetShop(ctx context.Context, id string) (*Shop, error)
	// FindActiveShopByOwner returns ErrShopInactive when the owner has no
	// active shop.
	FindActiveShopByOwner(ctx context.Context, ownerID string) (*Shop, error)
}

// ActiveShopOf runs the shop-operator checks shared by the shop order
// listing and status changes: the user exists, is active, owns a shop, and
// that shop is active.
func ActiveShopOf(ctx context.Context, repo Repository, userID string) (*Shop, error) {
	u, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}
	if !u.HasShop {
		return nil, ErrNoShop
	}
	return repo.FindActiveShopByOwner(ctx, u.ID)
}
