package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CheckWindow reports whether now falls inside the rule's [start, end] window.
func CheckWindow(rule *Rule, now time.Time) error {
	if now.Before(rule.StartDate) {
		return ErrCouponNotStarted
	}
	if now.After(rule.EndDate) {
		return ErrCouponExpired
	}
	return nil
}

// Apply calculates the discount for subtotal. Inactive rules and subtotals
// below the minimum order amount yield zero.
func Apply(rule *Rule, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if !rule.IsActive || subtotal.LessThan(rule.MinOrderAmount) {
		return decimal.Zero, nil
	}

	switch rule.DiscountType {
	case DiscountFlat:
		return floorAtZero(decimal.Min(rule.Value, subtotal)).Round(2), nil
	case DiscountPercentage:
		return applyPercentage(rule, subtotal), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}
}

func applyPercentage(rule *Rule, subtotal decimal.Decimal) decimal.Decimal {
	amount := rule.Value.Div(hundred).Mul(subtotal)
	if rule.MaxDiscount.Valid {
		amount = decimal.Min(amount, rule.MaxDiscount.Decimal)
	}
	// A percentage above 100 must not push the total negative.
	amount = decimal.Min(amount, subtotal)
	return floorAtZero(amount).Round(2)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
