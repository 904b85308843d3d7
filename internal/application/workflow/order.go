package workflow

import (
	"context"

	"github.com/garyjia/fulfillment-engine/internal/domain/event"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// OrderForwardPath is the happy path of an order, in order
var OrderForwardPath = []domainwf.State{
	domainwf.StateNew,
	domainwf.StateConfirmed,
	domainwf.StateAllocated,
	domainwf.StatePicklistCreated,
	domainwf.StatePicking,
	domainwf.StatePicked,
	domainwf.StatePacking,
	domainwf.StatePacked,
	domainwf.StateManifested,
	domainwf.StateReadyToShip,
	domainwf.StateShipped,
	domainwf.StateInTransit,
	domainwf.StateOutForDelivery,
	domainwf.StateDelivered,
}

// NewOrderDefinition builds the order fulfillment workflow
func NewOrderDefinition() *Definition {
	b := domainwf.NewBuilder[*Attempt]("order")
	b.Entry(domainwf.StateNew, domainwf.StatePendingPayment).
		Terminal(domainwf.StateDelivered, domainwf.StateRTODelivered, domainwf.StateCancelled, domainwf.StateRefunded)

	for i := 0; i < len(OrderForwardPath)-1; i++ {
		next := OrderForwardPath[i+1]
		b.Configure(OrderForwardPath[i]).Permit(domainwf.To(next), next)
	}

	b.Configure(domainwf.StatePendingPayment).
		PermitIf(domainwf.To(domainwf.StateConfirmed), domainwf.StateConfirmed, requirePayment)

	// Return to origin
	b.Configure(domainwf.StateShipped).Permit(domainwf.To(domainwf.StateRTOInitiated), domainwf.StateRTOInitiated)
	b.Configure(domainwf.StateInTransit).Permit(domainwf.To(domainwf.StateRTOInitiated), domainwf.StateRTOInitiated)
	b.Configure(domainwf.StateRTOInitiated).Permit(domainwf.To(domainwf.StateRTOInTransit), domainwf.StateRTOInTransit)
	b.Configure(domainwf.StateRTOInTransit).Permit(domainwf.To(domainwf.StateRTODelivered), domainwf.StateRTODelivered)

	cancellable := append([]domainwf.State{domainwf.StatePendingPayment, domainwf.StateOnHold, domainwf.StateRTOInitiated, domainwf.StateRTOInTransit},
		OrderForwardPath[:len(OrderForwardPath)-1]...)
	for _, s := range cancellable {
		b.Configure(s).PermitWith(domainwf.Transition[*Attempt]{
			Event:  domainwf.To(domainwf.StateCancelled),
			To:     domainwf.StateCancelled,
			Guard:  requireReason,
			Effect: releaseHold,
		})
	}

	holdable := append([]domainwf.State{domainwf.StatePendingPayment, domainwf.StateRTOInitiated, domainwf.StateRTOInTransit},
		OrderForwardPath[:len(OrderForwardPath)-1]...)
	for _, s := range holdable {
		b.Configure(s).PermitWith(domainwf.Transition[*Attempt]{
			Event:  domainwf.To(domainwf.StateOnHold),
			To:     domainwf.StateOnHold,
			Effect: rememberHold,
		})
	}

	b.Configure(domainwf.StateOnHold).PermitWith(domainwf.Transition[*Attempt]{
		Event:   domainwf.EventResume,
		Resolve: resumeTarget,
		Effect:  releaseHold,
	})

	// The only exit from a terminal state
	b.Configure(domainwf.StateCancelled).PermitWith(domainwf.Transition[*Attempt]{
		Event:  domainwf.To(domainwf.StateRefunded),
		To:     domainwf.StateRefunded,
		Guard:  requireSettledPayment,
		Effect: refundCapturedPayments,
	})

	return b.Build()
}

func requirePayment(_ context.Context, a *Attempt) error {
	if !a.Instance.Order.AmountPaid().IsPositive() {
		return domainwf.Reject("payment required")
	}
	return nil
}

func requireReason(_ context.Context, a *Attempt) error {
	if a.Input.Reason == "" {
		return domainwf.Reject("cancellation reason required")
	}
	return nil
}

func requireSettledPayment(_ context.Context, a *Attempt) error {
	if !a.Instance.Order.Ledger.HasSettledPayment() {
		return domainwf.Reject("no captured payment to refund")
	}
	return nil
}

func rememberHold(_ context.Context, a *Attempt) error {
	a.Instance.HeldFrom = a.From
	return nil
}

func releaseHold(_ context.Context, a *Attempt) error {
	a.Instance.HeldFrom = ""
	return nil
}

func resumeTarget(a *Attempt) (domainwf.State, error) {
	if a.Instance.HeldFrom == "" {
		return "", domainwf.Reject("no state to resume to")
	}
	return a.Instance.HeldFrom, nil
}

// refundCapturedPayments refunds every CAPTURED payment in full
func refundCapturedPayments(_ context.Context, a *Attempt) error {
	l := &a.Instance.Order.Ledger
	for _, p := range l.Payments {
		if p.Status != ledger.PaymentCaptured {
			continue
		}
		refunded, err := l.Refund(p.ID, p.Amount, a.Now)
		if err != nil {
			return err
		}
		a.Emit(event.TypePaymentRefunded, map[string]interface{}{
			"payment_id": refunded.ID,
			"amount":     refunded.RefundedAmount.String(),
		})
	}
	return nil
}
