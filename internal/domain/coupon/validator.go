package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator resolves a coupon code against an order subtotal.
type Validator interface {
	Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Resolve looks up the code, rejects it outside its validity window, and
// computes the discount. The window is enforced even for inactive coupons.
func (v *RepoValidator) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error) {
	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := CheckWindow(rule, v.now()); err != nil {
		return nil, err
	}

	amount, err := Apply(rule, subtotal)
	if err != nil {
		return nil, err
	}

	return &Applied{
		CouponID: rule.ID,
		Code:     rule.Code,
		Amount:   amount,
	}, nil
}
