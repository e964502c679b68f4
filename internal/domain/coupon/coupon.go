package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/apperr"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFlat subtracts a fixed amount, capped at the subtotal.
	DiscountFlat DiscountType = "Flat"
	// DiscountPercentage subtracts a percentage of the subtotal, capped at
	// MaxDiscount when one is set.
	DiscountPercentage DiscountType = "Percentage"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountFlat || t == DiscountPercentage
}

var (
	// ErrInvalidCoupon is returned when a coupon code does not exist.
	ErrInvalidCoupon = apperr.New(apperr.KindValidation, "invalid coupon code")
	// ErrCouponNotStarted is returned before the coupon's start date.
	ErrCouponNotStarted = apperr.New(apperr.KindConflict, "coupon has not started yet")
	// ErrCouponExpired is returned after the coupon's end date.
	ErrCouponExpired = apperr.New(apperr.KindConflict, "coupon has expired")
)

// Rule is a shop's discount code.
type Rule struct {
	ID             string
	Code           string
	ShopID         string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MaxDiscount    decimal.NullDecimal
	StartDate      time.Time
	EndDate        time.Time
	MinOrderAmount decimal.Decimal
	IsActive       bool
	IsDeleted      bool
}

// Applied is the outcome of resolving a code against an order subtotal.
// Amount is zero when the rule is inactive or the subtotal is under the
// minimum.
type Applied struct {
	CouponID string
	Code     string
	Amount   decimal.Decimal
}

// Repository provides coupon lookups.
type Repository interface {
	// FindByCode returns ErrInvalidCoupon when no live coupon has the code.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	GetByID(ctx context.Context, id string) (*Rule, error)
}
