package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(product string, qty int64, price string, discount, gst string) LineItem {
	return LineItem{
		ProductID:       product,
		Quantity:        qty,
		UnitPrice:       money.MustParse(price),
		DiscountPercent: decimal.RequireFromString(discount),
		GSTRate:         decimal.RequireFromString(gst),
	}
}

func TestCompute_DiscountThenTax(t *testing.T) {
	totals, err := Compute([]LineItem{item("RO-100", 2, "1000", "10", "18")}, money.Zero)
	require.NoError(t, err)

	assert.Equal(t, money.MustParse("2000"), totals.Subtotal)
	assert.Equal(t, money.MustParse("200"), totals.DiscountAmount)
	assert.Equal(t, money.MustParse("1800"), totals.TaxableAmount)
	assert.Equal(t, money.MustParse("324"), totals.TaxAmount)
	assert.Equal(t, money.MustParse("2124"), totals.GrandTotal)
	require.Len(t, totals.Lines, 1)
	assert.Equal(t, money.MustParse("2124"), totals.Lines[0].Total)
}

func TestCompute_TotalsIdentity(t *testing.T) {
	items := []LineItem{
		item("RO-100", 3, "333.33", "7.5", "18"),
		item("FILTER-2", 1, "49.99", "0", "12"),
		item("SVC-AMC", 2, "1499", "100", "18"),
		item("PIPE", 7, "0.99", "3", "5"),
	}
	shipping := money.MustParse("99")

	totals, err := Compute(items, shipping)
	require.NoError(t, err)

	assert.Equal(t,
		totals.Subtotal-totals.DiscountAmount+totals.TaxAmount+totals.ShippingAmount,
		totals.GrandTotal)

	var lineSum money.Money
	for _, l := range totals.Lines {
		lineSum += l.Total
	}
	assert.Equal(t, lineSum+shipping, totals.GrandTotal)
}

func TestCompute_Deterministic(t *testing.T) {
	items := []LineItem{
		item("A", 5, "17.17", "13", "18"),
		item("B", 11, "3.33", "33.3", "28"),
	}

	first, err := Compute(items, money.MustParse("40"))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Compute(items, money.MustParse("40"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_InvalidLineItems(t *testing.T) {
	tests := []struct {
		name  string
		item  LineItem
		field string
	}{
		{"zero quantity", item("A", 0, "10", "0", "18"), "quantity"},
		{"negative quantity", item("A", -1, "10", "0", "18"), "quantity"},
		{"negative price", item("A", 1, "-10", "0", "18"), "unit_price"},
		{"discount above 100", item("A", 1, "10", "100.01", "18"), "discount_percent"},
		{"negative discount", item("A", 1, "10", "-1", "18"), "discount_percent"},
		{"negative gst", item("A", 1, "10", "0", "-5"), "gst_rate"},
		{"missing product", item("", 1, "10", "0", "18"), "product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := item("OK", 1, "10", "0", "0")
			_, err := Compute([]LineItem{valid, tt.item}, money.Zero)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidLineItem)

			var lineErr *LineItemError
			require.True(t, errors.As(err, &lineErr))
			assert.Equal(t, 1, lineErr.Index)
			assert.Equal(t, tt.field, lineErr.Field)
		})
	}
}

func TestCompute_NegativeShipping(t *testing.T) {
	_, err := Compute([]LineItem{item("A", 1, "10", "0", "0")}, money.MustParse("-1"))
	assert.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestCompute_AmountOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		items []LineItem
	}{
		{"quantity times price", []LineItem{{
			ProductID: "RO-100",
			Quantity:  1 << 40,
			UnitPrice: money.FromMinor(1 << 24),
			GSTRate:   decimal.NewFromInt(18),
		}}},
		{"tax on large line", []LineItem{{
			ProductID: "RO-100",
			Quantity:  1,
			UnitPrice: money.FromMinor(math.MaxInt64 / 2),
			GSTRate:   decimal.NewFromInt(300),
		}}},
		{"sum of lines", []LineItem{
			{ProductID: "A", Quantity: 1, UnitPrice: money.FromMinor(math.MaxInt64 / 2)},
			{ProductID: "B", Quantity: 1, UnitPrice: money.FromMinor(math.MaxInt64 / 2)},
			{ProductID: "C", Quantity: 1, UnitPrice: money.FromMinor(math.MaxInt64 / 2)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := Compute(tt.items, money.Zero)
			assert.ErrorIs(t, err, ErrInvalidLineItem)
			assert.ErrorIs(t, err, money.ErrOutOfRange)
			assert.Equal(t, Totals{}, totals)
		})
	}
}

func TestCompute_EmptyOrder(t *testing.T) {
	totals, err := Compute(nil, money.MustParse("50"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("50"), totals.GrandTotal)
	assert.Empty(t, totals.Lines)
}

func TestCompute_BoundaryDiscounts(t *testing.T) {
	totals, err := Compute([]LineItem{
		item("FREE", 2, "500", "100", "18"),
		item("FULL", 1, "100", "0", "0"),
	}, money.Zero)
	require.NoError(t, err)

	assert.Equal(t, money.Zero, totals.Lines[0].Taxable)
	assert.Equal(t, money.Zero, totals.Lines[0].Tax)
	assert.Equal(t, money.MustParse("100"), totals.GrandTotal)
}
