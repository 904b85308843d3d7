package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/event"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// States in which an order's line items may still change
var editableOrderStates = map[domainwf.State]bool{
	domainwf.StateNew:            true,
	domainwf.StatePendingPayment: true,
	domainwf.StateConfirmed:      true,
}

// States in which a technician may be (re)assigned
var assignableInstallationStates = map[domainwf.State]bool{
	domainwf.StateNew:       true,
	domainwf.StateScheduled: true,
	domainwf.StateAssigned:  true,
}

// RecordPayment appends a PENDING payment to the order ledger
func RecordPayment(amount money.Money, method, externalRef string) Action {
	return Action{
		Name: "record_payment",
		Guard: func(a *Attempt) error {
			if s := a.Instance.State; s == domainwf.StateCancelled || s == domainwf.StateRefunded {
				return domainwf.Reject(fmt.Sprintf("payments cannot be recorded in %s", s))
			}
			return nil
		},
		Apply: func(_ context.Context, a *Attempt) error {
			order := a.Instance.Order
			p, err := order.Ledger.Record(a.NewID(), amount, method, externalRef, order.Totals.GrandTotal, a.Now)
			if err != nil {
				return err
			}
			a.Emit(event.TypePaymentRecorded, map[string]interface{}{
				"payment_id": p.ID,
				"amount":     p.Amount.String(),
				"method":     p.Method,
				"balance":    order.BalanceDue().String(),
			})
			return nil
		},
	}
}

// CapturePayment marks a PENDING payment as CAPTURED
func CapturePayment(paymentID string) Action {
	return Action{
		Name: "capture_payment",
		Apply: func(_ context.Context, a *Attempt) error {
			p, err := a.Instance.Order.Ledger.MarkCaptured(paymentID, a.Now)
			if err != nil {
				return err
			}
			a.Emit(event.TypePaymentCaptured, map[string]interface{}{
				"payment_id": p.ID,
				"amount":     p.Amount.String(),
				"status":     string(a.Instance.Order.PaymentStatus()),
			})
			return nil
		},
	}
}

// FailPayment marks a PENDING payment as FAILED
func FailPayment(paymentID string) Action {
	return Action{
		Name: "fail_payment",
		Apply: func(_ context.Context, a *Attempt) error {
			p, err := a.Instance.Order.Ledger.MarkFailed(paymentID, a.Now)
			if err != nil {
				return err
			}
			a.Emit(event.TypePaymentFailed, map[string]interface{}{
				"payment_id": p.ID,
				"amount":     p.Amount.String(),
			})
			return nil
		},
	}
}

// RefundPayment refunds up to the full amount of a CAPTURED payment. A zero
// amount refunds the payment in full.
func RefundPayment(paymentID string, amount money.Money) Action {
	return Action{
		Name: "refund_payment",
		Apply: func(_ context.Context, a *Attempt) error {
			refund := amount
			if refund.IsZero() {
				if p, err := a.Instance.Order.Ledger.Find(paymentID); err == nil {
					refund = p.Amount
				}
			}
			p, err := a.Instance.Order.Ledger.Refund(paymentID, refund, a.Now)
			if err != nil {
				return err
			}
			a.Emit(event.TypePaymentRefunded, map[string]interface{}{
				"payment_id": p.ID,
				"amount":     p.RefundedAmount.String(),
			})
			return nil
		},
	}
}

// UpdateItems replaces the order's line items and re-prices it
func UpdateItems(items []pricing.LineItem, shipping money.Money) Action {
	return Action{
		Name: "update_items",
		Guard: func(a *Attempt) error {
			if !editableOrderStates[a.Instance.State] {
				return domainwf.Reject(fmt.Sprintf("items cannot change in %s", a.Instance.State))
			}
			return nil
		},
		Apply: func(_ context.Context, a *Attempt) error {
			if err := a.Instance.Order.SetItems(items, shipping); err != nil {
				return err
			}
			a.Emit(event.TypeItemsUpdated, map[string]interface{}{
				"grand_total": a.Instance.Order.Totals.GrandTotal.String(),
			})
			return nil
		},
	}
}

// GenerateInvoice issues the order's invoice. It is allowed only in
// CONFIRMED and only while no active invoice exists. Issuance is keyed by
// order and generation so a retried call receives the same number.
func GenerateInvoice(issuer port.InvoiceIssuer) Action {
	return Action{
		Name: "generate_invoice",
		Guard: func(a *Attempt) error {
			if a.Instance.State != domainwf.StateConfirmed {
				return fmt.Errorf("%w: %s", domainwf.ErrInvoiceNotAllowedInState, a.Instance.State)
			}
			if _, exists := a.Instance.Order.ActiveInvoice(); exists {
				return fmt.Errorf("%w: order %s", domainwf.ErrInvoiceAlreadyExists, a.Instance.ID)
			}
			return nil
		},
		Apply: func(ctx context.Context, a *Attempt) error {
			order := a.Instance.Order
			issued, err := issuer.Issue(ctx, port.IssueRequest{
				IdempotencyKey: fmt.Sprintf("%s#%d", a.Instance.ID, order.InvoiceGeneration()),
				OrderID:        a.Instance.ID,
				CustomerID:     order.CustomerID,
				Totals:         order.Totals,
				IssuedAt:       a.Now,
			})
			if err != nil {
				return &domainwf.SideEffectError{Action: "generate_invoice", Err: err}
			}

			inv := entity.Invoice{
				ID:         a.NewID(),
				OrderID:    a.Instance.ID,
				Number:     issued.InvoiceNumber,
				IRN:        issued.IRN,
				CustomerID: order.CustomerID,
				Totals:     order.Totals.Clone(),
				IssuedAt:   a.Now,
			}
			order.Invoices = append(order.Invoices, inv)
			a.Emit(event.TypeInvoiceGenerated, map[string]interface{}{
				"invoice_id":     inv.ID,
				"invoice_number": inv.Number,
				"irn":            inv.IRN,
				"grand_total":    inv.Totals.GrandTotal.String(),
			})
			return nil
		},
	}
}

// VoidInvoice voids the active invoice so a new one may be issued
func VoidInvoice(reason string) Action {
	return Action{
		Name: "void_invoice",
		Guard: func(a *Attempt) error {
			if reason == "" {
				return domainwf.Reject("void reason required")
			}
			if _, exists := a.Instance.Order.ActiveInvoice(); !exists {
				return domainwf.Reject("no active invoice")
			}
			return nil
		},
		Apply: func(_ context.Context, a *Attempt) error {
			inv, _ := a.Instance.Order.ActiveInvoice()
			at := a.Now
			inv.Voided = true
			inv.VoidedAt = &at
			inv.VoidReason = reason
			a.Emit(event.TypeInvoiceVoided, map[string]interface{}{
				"invoice_id":     inv.ID,
				"invoice_number": inv.Number,
				"reason":         reason,
			})
			return nil
		},
	}
}

// AssignTechnician sets or replaces the installation's technician before work starts
func AssignTechnician(masterData port.MasterData, technicianID string) Action {
	return Action{
		Name: "assign_technician",
		Guard: func(a *Attempt) error {
			if technicianID == "" {
				return domainwf.Reject("technician id required")
			}
			if !assignableInstallationStates[a.Instance.State] {
				return domainwf.Reject(fmt.Sprintf("technician cannot be assigned in %s", a.Instance.State))
			}
			return nil
		},
		Apply: func(ctx context.Context, a *Attempt) error {
			return assignTechnician(ctx, masterData, a, technicianID)
		},
	}
}

// RecordFeedback stores the customer's rating once the installation is completed
func RecordFeedback(rating int, comments string) Action {
	return Action{
		Name: "record_feedback",
		Guard: func(a *Attempt) error {
			if a.Instance.State != domainwf.StateCompleted {
				return domainwf.Reject("feedback requires a completed installation")
			}
			if a.Instance.Installation.Feedback != nil {
				return domainwf.Reject("feedback already recorded")
			}
			return (&entity.Feedback{Rating: rating}).Validate()
		},
		Apply: func(_ context.Context, a *Attempt) error {
			a.Instance.Installation.Feedback = &entity.Feedback{
				Rating:     rating,
				Comments:   comments,
				RecordedAt: a.Now,
			}
			a.Emit(event.TypeFeedbackRecorded, map[string]interface{}{
				"rating": rating,
			})
			return nil
		},
	}
}
