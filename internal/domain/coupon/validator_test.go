package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule *Rule
	err  error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Rule, error) {
	return m.rule, m.err
}

func (m *mockCouponRepo) GetByID(_ context.Context, _ string) (*Rule, error) {
	return m.rule, m.err
}

func TestRepoValidator_Resolve(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := fixedNow.Add(-24 * time.Hour)
	tomorrow := fixedNow.Add(24 * time.Hour)
	nextWeek := fixedNow.Add(7 * 24 * time.Hour)

	rule := func(mut func(r *Rule)) *Rule {
		r := &Rule{
			ID:             "c1",
			Code:           "EID20",
			DiscountType:   DiscountPercentage,
			Value:          decimal.NewFromInt(20),
			MaxDiscount:    decimal.NewNullDecimal(decimal.NewFromInt(150)),
			StartDate:      yesterday,
			EndDate:        nextWeek,
			MinOrderAmount: decimal.NewFromInt(500),
			IsActive:       true,
		}
		if mut != nil {
			mut(r)
		}
		return r
	}

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		subtotal   decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "percentage capped at max discount",
			repo:       &mockCouponRepo{rule: rule(nil)},
			subtotal:   decimal.NewFromInt(1000),
			wantAmount: decimal.NewFromInt(150),
		},
		{
			name:       "percentage under cap",
			repo:       &mockCouponRepo{rule: rule(nil)},
			subtotal:   decimal.NewFromInt(600),
			wantAmount: decimal.NewFromInt(120),
		},
		{
			name:     "unknown code",
			repo:     &mockCouponRepo{err: ErrInvalidCoupon},
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrInvalidCoupon,
		},
		{
			name:     "not started",
			repo:     &mockCouponRepo{rule: rule(func(r *Rule) { r.StartDate = tomorrow })},
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrCouponNotStarted,
		},
		{
			name:     "expired even when active",
			repo:     &mockCouponRepo{rule: rule(func(r *Rule) { r.EndDate = yesterday })},
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrCouponExpired,
		},
		{
			name:       "inactive coupon gives zero discount",
			repo:       &mockCouponRepo{rule: rule(func(r *Rule) { r.IsActive = false })},
			subtotal:   decimal.NewFromInt(1000),
			wantAmount: decimal.Zero,
		},
		{
			name:       "below minimum order amount gives zero discount",
			repo:       &mockCouponRepo{rule: rule(nil)},
			subtotal:   decimal.NewFromInt(499),
			wantAmount: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Resolve(context.Background(), "EID20", tt.subtotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "c1", got.CouponID)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestRepoValidator_RepoError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("db down")})

	_, err := v.Resolve(context.Background(), "X", decimal.NewFromInt(10))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "lookup coupon")
}
