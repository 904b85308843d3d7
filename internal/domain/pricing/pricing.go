package pricing

import (
	"errors"
	"fmt"

	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/shopspring/decimal"
)

// ErrInvalidLineItem is returned when a line item violates its constraints
var ErrInvalidLineItem = errors.New("invalid line item")

var hundred = decimal.NewFromInt(100)

// LineItemError describes which line item was rejected and why
type LineItemError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *LineItemError) Error() string {
	return fmt.Sprintf("invalid line item %d: %s %s", e.Index, e.Field, e.Reason)
}

func (e *LineItemError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidLineItem, e.Err}
	}
	return []error{ErrInvalidLineItem}
}

// LineItem is one priced product on an order
type LineItem struct {
	ProductID       string          `json:"product_id"`
	Description     string          `json:"description,omitempty"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       money.Money     `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	GSTRate         decimal.Decimal `json:"gst_rate"`
}

// Validate checks the item's field constraints. index is used for error reporting.
func (li LineItem) Validate(index int) error {
	switch {
	case li.ProductID == "":
		return &LineItemError{Index: index, Field: "product_id", Reason: "is required"}
	case li.Quantity <= 0:
		return &LineItemError{Index: index, Field: "quantity", Reason: "must be greater than zero"}
	case li.UnitPrice.IsNegative():
		return &LineItemError{Index: index, Field: "unit_price", Reason: "must not be negative"}
	case li.DiscountPercent.IsNegative() || li.DiscountPercent.GreaterThan(hundred):
		return &LineItemError{Index: index, Field: "discount_percent", Reason: "must be between 0 and 100"}
	case li.GSTRate.IsNegative():
		return &LineItemError{Index: index, Field: "gst_rate", Reason: "must not be negative"}
	}
	return nil
}

// LineTotals is the computed breakdown of a single line
type LineTotals struct {
	ProductID string      `json:"product_id"`
	Base      money.Money `json:"base"`
	Discount  money.Money `json:"discount"`
	Taxable   money.Money `json:"taxable"`
	Tax       money.Money `json:"tax"`
	Total     money.Money `json:"total"`
}

// Totals is the full price breakdown of a set of line items plus shipping.
// GrandTotal == Subtotal - DiscountAmount + TaxAmount + ShippingAmount always holds.
type Totals struct {
	Lines          []LineTotals `json:"lines"`
	Subtotal       money.Money  `json:"subtotal"`
	DiscountAmount money.Money  `json:"discount_amount"`
	TaxableAmount  money.Money  `json:"taxable_amount"`
	TaxAmount      money.Money  `json:"tax_amount"`
	ShippingAmount money.Money  `json:"shipping_amount"`
	GrandTotal     money.Money  `json:"grand_total"`
}

// Clone returns a copy that shares no memory with t
func (t Totals) Clone() Totals {
	c := t
	c.Lines = append([]LineTotals(nil), t.Lines...)
	return c
}

// Line computes the totals for one line item. The item must already be valid.
// Amounts that do not fit in minor units are rejected.
func Line(li LineItem) (LineTotals, error) {
	base, err := li.UnitPrice.Mul(li.Quantity)
	if err != nil {
		return LineTotals{}, err
	}
	discount, err := base.Percent(li.DiscountPercent)
	if err != nil {
		return LineTotals{}, err
	}
	taxable := base.Sub(discount)
	tax, err := taxable.Percent(li.GSTRate)
	if err != nil {
		return LineTotals{}, err
	}
	total, err := taxable.CheckedAdd(tax)
	if err != nil {
		return LineTotals{}, err
	}
	return LineTotals{
		ProductID: li.ProductID,
		Base:      base,
		Discount:  discount,
		Taxable:   taxable,
		Tax:       tax,
		Total:     total,
	}, nil
}

// Compute prices items and aggregates them with the shipping amount.
// It is pure: the same input always yields the same Totals.
func Compute(items []LineItem, shipping money.Money) (Totals, error) {
	if shipping.IsNegative() {
		return Totals{}, fmt.Errorf("%w: shipping amount must not be negative", ErrInvalidLineItem)
	}

	totals := Totals{
		Lines:          make([]LineTotals, 0, len(items)),
		ShippingAmount: shipping,
	}
	for i, li := range items {
		if err := li.Validate(i); err != nil {
			return Totals{}, err
		}
		line, err := Line(li)
		if err != nil {
			return Totals{}, &LineItemError{Index: i, Field: "amount", Reason: "is out of range", Err: err}
		}
		totals.Lines = append(totals.Lines, line)
		if err := accumulate(&totals, line); err != nil {
			return Totals{}, &LineItemError{Index: i, Field: "amount", Reason: "is out of range", Err: err}
		}
	}

	// Subtotal - DiscountAmount == TaxableAmount, and every term is non-negative
	grand, err := totals.TaxableAmount.CheckedAdd(totals.TaxAmount)
	if err == nil {
		grand, err = grand.CheckedAdd(totals.ShippingAmount)
	}
	if err != nil {
		return Totals{}, fmt.Errorf("%w: grand total: %w", ErrInvalidLineItem, err)
	}
	totals.GrandTotal = grand
	return totals, nil
}

func accumulate(t *Totals, line LineTotals) error {
	var err error
	if t.Subtotal, err = t.Subtotal.CheckedAdd(line.Base); err != nil {
		return err
	}
	if t.DiscountAmount, err = t.DiscountAmount.CheckedAdd(line.Discount); err != nil {
		return err
	}
	if t.TaxableAmount, err = t.TaxableAmount.CheckedAdd(line.Taxable); err != nil {
		return err
	}
	t.TaxAmount, err = t.TaxAmount.CheckedAdd(line.Tax)
	return err
}

// CloneItems copies a slice of line items
func CloneItems(items []LineItem) []LineItem {
	return append([]LineItem(nil), items...)
}
