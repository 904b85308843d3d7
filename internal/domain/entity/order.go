package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
)

// OrderPayload is the order-specific part of an instance
type OrderPayload struct {
	CustomerID string             `json:"customer_id"`
	Items      []pricing.LineItem `json:"items"`
	Shipping   money.Money        `json:"shipping"`
	Totals     pricing.Totals     `json:"totals"`
	Ledger     ledger.Ledger      `json:"ledger"`
	Invoices   []Invoice          `json:"invoices"`
}

// NewOrderPayload prices the items and returns a payload with an empty ledger
func NewOrderPayload(customerID string, items []pricing.LineItem, shipping money.Money, policy ledger.Policy) (*OrderPayload, error) {
	p := &OrderPayload{
		CustomerID: customerID,
		Ledger:     ledger.New(policy),
	}
	if err := p.SetItems(items, shipping); err != nil {
		return nil, err
	}
	return p, nil
}

// SetItems replaces the line items and shipping, recomputing totals wholesale
func (p *OrderPayload) SetItems(items []pricing.LineItem, shipping money.Money) error {
	totals, err := pricing.Compute(items, shipping)
	if err != nil {
		return err
	}
	p.Items = pricing.CloneItems(items)
	p.Shipping = shipping
	p.Totals = totals
	return nil
}

// Reprice recomputes totals from the stored items
func (p *OrderPayload) Reprice() error {
	return p.SetItems(p.Items, p.Shipping)
}

// AmountPaid is derived from the ledger
func (p *OrderPayload) AmountPaid() money.Money {
	return p.Ledger.AmountPaid()
}

// BalanceDue is derived from the ledger and the grand total
func (p *OrderPayload) BalanceDue() money.Money {
	return p.Ledger.BalanceDue(p.Totals.GrandTotal)
}

// PaymentStatus is derived from the ledger and the grand total
func (p *OrderPayload) PaymentStatus() ledger.Status {
	return p.Ledger.Status(p.Totals.GrandTotal)
}

// ActiveInvoice returns the non-voided invoice, if any
func (p *OrderPayload) ActiveInvoice() (*Invoice, bool) {
	for idx := range p.Invoices {
		if !p.Invoices[idx].Voided {
			return &p.Invoices[idx], true
		}
	}
	return nil, false
}

// InvoiceGeneration counts voided invoices. It distinguishes successive
// issuances for the same order.
func (p *OrderPayload) InvoiceGeneration() int {
	n := 0
	for _, inv := range p.Invoices {
		if inv.Voided {
			n++
		}
	}
	return n
}

// Clone returns a deep copy
func (p *OrderPayload) Clone() *OrderPayload {
	c := *p
	c.Items = pricing.CloneItems(p.Items)
	c.Totals = p.Totals.Clone()
	c.Ledger = p.Ledger.Clone()
	c.Invoices = make([]Invoice, len(p.Invoices))
	for idx, inv := range p.Invoices {
		c.Invoices[idx] = inv.Clone()
	}
	return &c
}

func (p *OrderPayload) checkInvariants(id string) error {
	active := 0
	for _, inv := range p.Invoices {
		if !inv.Voided {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("instance %s: %d active invoices", id, active)
	}
	t := p.Totals
	if t.GrandTotal != t.Subtotal-t.DiscountAmount+t.TaxAmount+t.ShippingAmount {
		return fmt.Errorf("instance %s: totals do not reconcile", id)
	}
	return nil
}

// Invoice is a point-in-time snapshot of an order's totals with its legal identifiers
type Invoice struct {
	ID         string         `json:"id"`
	OrderID    string         `json:"order_id"`
	Number     string         `json:"invoice_number"`
	IRN        string         `json:"irn"`
	CustomerID string         `json:"customer_id"`
	Totals     pricing.Totals `json:"totals"`
	IssuedAt   time.Time      `json:"issued_at"`
	Voided     bool           `json:"voided"`
	VoidedAt   *time.Time     `json:"voided_at,omitempty"`
	VoidReason string         `json:"void_reason,omitempty"`
}

// Clone returns a deep copy
func (inv Invoice) Clone() Invoice {
	c := inv
	c.Totals = inv.Totals.Clone()
	if inv.VoidedAt != nil {
		t := *inv.VoidedAt
		c.VoidedAt = &t
	}
	return c
}
