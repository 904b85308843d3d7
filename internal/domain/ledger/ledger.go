package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/money"
)

var (
	// ErrInvalidPaymentState is returned when a payment status change is not allowed
	ErrInvalidPaymentState = errors.New("invalid payment state")

	// ErrOverpaymentRejected is returned when a payment exceeds the balance due
	// and the ledger policy does not allow overpayment
	ErrOverpaymentRejected = errors.New("overpayment rejected")

	// ErrPaymentNotFound is returned when a payment id is unknown to the ledger
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidPaymentAmount is returned for non-positive payment or refund amounts
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")
)

// PaymentStatus is the lifecycle status of a single payment
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentCaptured PaymentStatus = "CAPTURED"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// counts reports whether payments in this status contribute to amount paid
func (s PaymentStatus) counts() bool {
	return s != PaymentFailed && s != PaymentRefunded
}

// Status is the derived payment position of an order
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
)

// Payment is a single payment recorded against an order
type Payment struct {
	ID             string        `json:"id"`
	Amount         money.Money   `json:"amount"`
	Method         string        `json:"method"`
	ExternalRef    string        `json:"external_ref,omitempty"`
	Status         PaymentStatus `json:"status"`
	RefundedAmount money.Money   `json:"refunded_amount"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Policy controls what the ledger accepts
type Policy struct {
	AllowOverpayment bool `json:"allow_overpayment"`
}

// Ledger is the append-only set of payments for one order.
// Payments are never removed; only their status advances.
type Ledger struct {
	Payments []Payment `json:"payments"`
	Policy   Policy    `json:"policy"`
}

// New creates an empty ledger with the given policy
func New(policy Policy) Ledger {
	return Ledger{Policy: policy}
}

// Clone returns a copy that shares no memory with l
func (l Ledger) Clone() Ledger {
	return Ledger{
		Payments: append([]Payment(nil), l.Payments...),
		Policy:   l.Policy,
	}
}

// Record appends a new PENDING payment.
func (l *Ledger) Record(id string, amount money.Money, method, externalRef string, grandTotal money.Money, now time.Time) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidPaymentAmount)
	}
	if method == "" {
		return Payment{}, fmt.Errorf("%w: method is required", ErrInvalidPaymentAmount)
	}
	if _, err := l.AmountPaid().CheckedAdd(amount); err != nil {
		return Payment{}, fmt.Errorf("%w: amount %s: %w", ErrInvalidPaymentAmount, amount, err)
	}
	if !l.Policy.AllowOverpayment && amount > l.BalanceDue(grandTotal) {
		return Payment{}, fmt.Errorf("%w: amount %s exceeds balance due %s", ErrOverpaymentRejected, amount, l.BalanceDue(grandTotal))
	}

	p := Payment{
		ID:          id,
		Amount:      amount,
		Method:      method,
		ExternalRef: externalRef,
		Status:      PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.Payments = append(l.Payments, p)
	return p, nil
}

// MarkCaptured moves a PENDING payment to CAPTURED
func (l *Ledger) MarkCaptured(id string, now time.Time) (Payment, error) {
	return l.advance(id, PaymentPending, PaymentCaptured, now)
}

// MarkFailed moves a PENDING payment to FAILED
func (l *Ledger) MarkFailed(id string, now time.Time) (Payment, error) {
	return l.advance(id, PaymentPending, PaymentFailed, now)
}

// Refund moves a CAPTURED payment to REFUNDED. The refunded amount may be
// less than the payment amount but never more.
func (l *Ledger) Refund(id string, amount money.Money, now time.Time) (Payment, error) {
	idx, err := l.indexOf(id)
	if err != nil {
		return Payment{}, err
	}
	p := &l.Payments[idx]
	if p.Status != PaymentCaptured {
		return Payment{}, fmt.Errorf("%w: cannot refund payment %s in status %s", ErrInvalidPaymentState, id, p.Status)
	}
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: refund amount must be greater than zero", ErrInvalidPaymentAmount)
	}
	if amount > p.Amount {
		return Payment{}, fmt.Errorf("%w: refund %s exceeds payment amount %s", ErrInvalidPaymentAmount, amount, p.Amount)
	}

	p.Status = PaymentRefunded
	p.RefundedAmount = amount
	p.UpdatedAt = now
	return *p, nil
}

// Find returns the payment with the given id
func (l Ledger) Find(id string) (Payment, error) {
	idx, err := l.indexOf(id)
	if err != nil {
		return Payment{}, err
	}
	return l.Payments[idx], nil
}

// AmountPaid sums every payment that is neither FAILED nor REFUNDED
func (l Ledger) AmountPaid() money.Money {
	var paid money.Money
	for _, p := range l.Payments {
		if p.Status.counts() {
			paid += p.Amount
		}
	}
	return paid
}

// AmountCaptured sums CAPTURED payments only
func (l Ledger) AmountCaptured() money.Money {
	var captured money.Money
	for _, p := range l.Payments {
		if p.Status == PaymentCaptured {
			captured += p.Amount
		}
	}
	return captured
}

// HasSettledPayment reports whether any payment was ever captured
func (l Ledger) HasSettledPayment() bool {
	for _, p := range l.Payments {
		if p.Status == PaymentCaptured || p.Status == PaymentRefunded {
			return true
		}
	}
	return false
}

// BalanceDue is grandTotal minus amount paid. Negative means overpaid.
func (l Ledger) BalanceDue(grandTotal money.Money) money.Money {
	return grandTotal.Sub(l.AmountPaid())
}

// Status derives the payment position against grandTotal
func (l Ledger) Status(grandTotal money.Money) Status {
	return DeriveStatus(l.AmountPaid(), grandTotal)
}

// DeriveStatus maps amount paid against grand total. PAID needs a positive
// amount paid, so a zero total with nothing paid stays PENDING.
func DeriveStatus(paid, grandTotal money.Money) Status {
	switch {
	case paid.IsPositive() && paid >= grandTotal:
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

func (l *Ledger) advance(id string, from, to PaymentStatus, now time.Time) (Payment, error) {
	idx, err := l.indexOf(id)
	if err != nil {
		return Payment{}, err
	}
	p := &l.Payments[idx]
	if p.Status != from {
		return Payment{}, fmt.Errorf("%w: payment %s is %s, expected %s", ErrInvalidPaymentState, id, p.Status, from)
	}
	p.Status = to
	p.UpdatedAt = now
	return *p, nil
}

func (l Ledger) indexOf(id string) (int, error) {
	for i := range l.Payments {
		if l.Payments[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
}
