package order

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DeliveryRates is the flat-rate delivery table: orders to the metro city
// pay MetroCharge, everything else pays DefaultCharge.
type DeliveryRates struct {
	MetroKeyword  string
	MetroCharge   decimal.Decimal
	DefaultCharge decimal.Decimal
}

// DefaultDeliveryRates charges 60 inside Dhaka and 120 elsewhere.
var DefaultDeliveryRates = DeliveryRates{
	MetroKeyword:  "dhaka",
	MetroCharge:   decimal.NewFromInt(60),
	DefaultCharge: decimal.NewFromInt(120),
}

// Charge returns the delivery charge for city. The match is a
// case-insensitive substring test, so "Dhaka North" is metro.
func (r DeliveryRates) Charge(city string) decimal.Decimal {
	if r.MetroKeyword != "" && strings.Contains(strings.ToLower(city), strings.ToLower(r.MetroKeyword)) {
		return r.MetroCharge
	}
	return r.DefaultCharge
}

// Totals are the derived money fields of an order.
type Totals struct {
	TotalAmount    decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Subtotal sums unit price times quantity over items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// ComputeTotals derives final = total − discount + delivery, rounded to cents.
// The discount is clamped to [0, total] so the final amount never drops
// below the delivery charge.
func ComputeTotals(items []LineItem, discount, delivery decimal.Decimal) Totals {
	total := Subtotal(items).Round(2)
	discount = decimal.Max(decimal.Zero, decimal.Min(discount, total)).Round(2)
	delivery = delivery.Round(2)

	return Totals{
		TotalAmount:    total,
		Discount:       discount,
		DeliveryCharge: delivery,
		FinalAmount:    total.Sub(discount).Add(delivery),
	}
}
