package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/emart-orders/internal/domain/coupon"
)

// --- Helpers ---

func writeGz(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func row(code string) string {
	return `{"code":"` + code + `","discountType":"Flat","value":"50",` +
		`"startDate":"2026-01-01T00:00:00Z","endDate":"2026-12-31T00:00:00Z"}`
}

// --- Tests ---

func TestDecodeRule(t *testing.T) {
	r, err := decodeRule([]byte(`{"code":" save20 ","discountType":"Percentage","value":20,` +
		`"maxDiscount":"500.50","minOrderAmount":1000,"shopId":"shop-1","isActive":false,` +
		`"startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z","extra":[1,2]}`))
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "save20", r.Code)
	assert.Equal(t, coupon.DiscountPercentage, r.DiscountType)
	assert.True(t, decimal.NewFromInt(20).Equal(r.Value))
	require.True(t, r.MaxDiscount.Valid)
	assert.Equal(t, "500.5", r.MaxDiscount.Decimal.String())
	assert.True(t, decimal.NewFromInt(1000).Equal(r.MinOrderAmount))
	assert.Equal(t, "shop-1", r.ShopID)
	assert.False(t, r.IsActive)
	assert.Equal(t, 2026, r.StartDate.Year())
}

func TestDecodeRule_Defaults(t *testing.T) {
	r, err := decodeRule([]byte(row("FLAT50")))
	require.NoError(t, err)
	assert.True(t, r.IsActive)
	assert.False(t, r.MaxDiscount.Valid)
	assert.Empty(t, r.ShopID)
	assert.True(t, r.MinOrderAmount.IsZero())
}

func TestDecodeRule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "not json", line: `nope`},
		{name: "no code", line: `{"discountType":"Flat","value":1,"startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`},
		{name: "bad type", line: `{"code":"X","discountType":"BOGO","value":1,"startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`},
		{name: "percentage over 100", line: `{"code":"X","discountType":"Percentage","value":101,"startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`},
		{name: "negative", line: `{"code":"X","discountType":"Flat","value":"-1","startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`},
		{name: "window reversed", line: `{"code":"X","discountType":"Flat","value":1,"startDate":"2026-02-01T00:00:00Z","endDate":"2026-01-01T00:00:00Z"}`},
		{name: "no dates", line: `{"code":"X","discountType":"Flat","value":1}`},
		{name: "bad amount", line: `{"code":"X","discountType":"Flat","value":true,"startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRule([]byte(tt.line))
			assert.Error(t, err)
		})
	}
}

func TestImport_SkipsCodesInSeveralFiles(t *testing.T) {
	ctx := context.Background()
	files := []string{
		writeGz(t, "a.ndjson.gz", row("ONLYA"), row("SHARED"), `garbage`),
		writeGz(t, "b.ndjson.gz", row("ONLYB"), row("shared")),
		writeGz(t, "c.ndjson.gz", row("ONLYC")),
	}

	filters, err := buildBloomFilters(ctx, files, 1000)
	require.NoError(t, err)
	conflicts, err := findConflicts(ctx, files, filters)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"SHARED": {}}, conflicts)

	var (
		written []string
		batches int
	)
	st, err := importFiles(ctx, files, conflicts, 2, func(_ context.Context, rules []coupon.Rule) error {
		batches++
		for _, r := range rules {
			written = append(written, r.Code)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ONLYA", "ONLYB", "ONLYC"}, written)
	assert.Equal(t, 2, batches)
	assert.Equal(t, stats{written: 3, conflicting: 2, invalid: 1}, st)
}

func TestImport_SinkError(t *testing.T) {
	files := []string{writeGz(t, "a.ndjson.gz", row("A1"), row("A2"))}

	_, err := importFiles(context.Background(), files, nil, 1, func(context.Context, []coupon.Rule) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMergeConflicts(t *testing.T) {
	got := mergeConflicts([]map[string]uint64{
		{"A": 1, "FALSEPOS": 1},
		{"A": 2},
		{"B": 4},
	})
	assert.Equal(t, map[string]struct{}{"A": {}}, got)
}
