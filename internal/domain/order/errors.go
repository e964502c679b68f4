package order

import (
	"fmt"

	"github.com/xenking/emart-orders/internal/domain/apperr"
)

// Sentinel errors for order workflows.
var (
	ErrEmptyItems          = apperr.New(apperr.KindValidation, "order must contain at least one item")
	ErrMixedShopCart       = apperr.New(apperr.KindValidation, "products must be from the same shop")
	ErrMissingCity         = apperr.New(apperr.KindValidation, "shipping city is required")
	ErrInvalidPayment      = apperr.New(apperr.KindValidation, "payment method must be COD or Online")
	ErrOrderNotFound       = apperr.New(apperr.KindNotFound, "order not found")
	ErrForbidden           = apperr.New(apperr.KindAuthorization, "you are not allowed to access this order")
	ErrInvalidStatus       = apperr.New(apperr.KindValidation, "unknown order status")
	ErrOrderAssigned       = apperr.New(apperr.KindConflict, "order is assigned to a delivery agent")
	ErrNegativeFinalAmount = apperr.New(apperr.KindInternal, "final amount is negative")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Kind() apperr.Kind { return apperr.KindNotFound }

// ProductInactiveError indicates a product that is disabled for sale.
type ProductInactiveError struct {
	ProductID string
	Name      string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("product %s is inactive", e.Name)
}

func (e *ProductInactiveError) Kind() apperr.Kind { return apperr.KindValidation }

// InsufficientStockError indicates the requested quantity exceeds stock.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product: %s", e.Name)
}

func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.KindValidation }

// InvalidQuantityError indicates a line item has a quantity below one.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Kind() apperr.Kind { return apperr.KindValidation }

// InvalidTransitionError indicates an illegal status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Kind() apperr.Kind { return apperr.KindConflict }
