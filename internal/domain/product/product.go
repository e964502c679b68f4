package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrStockExhausted is returned by DecrementStock when the row no longer
	// holds enough stock for the requested quantity.
	ErrStockExhausted = errors.New("stock exhausted")
)

// Product is a catalog item owned by a single shop.
type Product struct {
	ID              string
	ShopID          string
	Name            string
	Price           decimal.Decimal
	OfferPrice      decimal.NullDecimal
	Stock           int
	IsActive        bool
	AvailableColors []string
}

// UnitPrice returns the offer price when one is set and non-zero, otherwise
// the list price.
func (p Product) UnitPrice() decimal.Decimal {
	if p.OfferPrice.Valid && !p.OfferPrice.Decimal.IsZero() {
		return p.OfferPrice.Decimal
	}
	return p.Price
}

// Repository defines product reads and the stock ledger.
//
// Implementations resolve the transaction from ctx, so calls made inside a
// unit of work observe and mutate the same snapshot.
type Repository interface {
	// GetForUpdate loads a product and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock subtracts qty only if at least qty units remain.
	DecrementStock(ctx context.Context, id string, qty int) error
}
