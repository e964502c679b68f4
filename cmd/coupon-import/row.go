package main

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/coupon"
)

// normalizeCode is the identity coupons are deduplicated on; the database
// unique index uses the same UPPER(code) form.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// decodeCode extracts only the code of an NDJSON row. Rows without one
// yield "".
func decodeCode(line []byte) (string, error) {
	var code string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "code" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	})
	if err != nil {
		return "", err
	}
	return normalizeCode(code), nil
}

// decodeRule parses one NDJSON coupon row:
//
//	{"code":"SAVE20","discountType":"Percentage","value":20,"maxDiscount":500,
//	 "minOrderAmount":1000,"startDate":"2026-01-01T00:00:00Z",
//	 "endDate":"2026-02-01T00:00:00Z","shopId":null,"isActive":true}
//
// Amounts may be JSON numbers or strings. isActive defaults to true.
func decodeRule(line []byte) (coupon.Rule, error) {
	r := coupon.Rule{IsActive: true, MinOrderAmount: decimal.Zero}
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			var v string
			v, err = d.Str()
			r.Code = strings.TrimSpace(v)
		case "discountType":
			var v string
			v, err = d.Str()
			r.DiscountType = coupon.DiscountType(v)
		case "value":
			r.Value, err = decodeAmount(d)
		case "maxDiscount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			v, err = decodeAmount(d)
			r.MaxDiscount = decimal.NewNullDecimal(v)
		case "minOrderAmount":
			r.MinOrderAmount, err = decodeAmount(d)
		case "startDate":
			r.StartDate, err = decodeTime(d)
		case "endDate":
			r.EndDate, err = decodeTime(d)
		case "shopId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			r.ShopID, err = d.Str()
		case "isActive":
			r.IsActive, err = d.Bool()
		default:
			return d.Skip()
		}
		return errors.Wrap(err, string(key))
	})
	if err != nil {
		return coupon.Rule{}, err
	}
	if err := validateRule(r); err != nil {
		return coupon.Rule{}, err
	}
	r.ID = uuid.NewString()
	return r, nil
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("amount must be a number or string")
	}
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

func validateRule(r coupon.Rule) error {
	switch {
	case r.Code == "":
		return errors.New("code is required")
	case !r.DiscountType.Valid():
		return errors.Errorf("unknown discount type %q", r.DiscountType)
	case r.Value.IsNegative():
		return errors.New("value must not be negative")
	case r.DiscountType == coupon.DiscountPercentage && r.Value.GreaterThan(decimal.NewFromInt(100)):
		return errors.New("percentage must not exceed 100")
	case r.StartDate.IsZero() || r.EndDate.IsZero():
		return errors.New("startDate and endDate are required")
	case !r.EndDate.After(r.StartDate):
		return errors.New("endDate must be after startDate")
	}
	return nil
}
