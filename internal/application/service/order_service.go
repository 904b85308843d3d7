package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/workflow"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ErrUnknownReference is returned when a request names a customer, product
// or technician that master data does not know
var ErrUnknownReference = errors.New("unknown reference")

// ErrNoActiveInvoice is returned when an export finds nothing to render
var ErrNoActiveInvoice = errors.New("order has no active invoice")

// CreateOrderRequest describes a new order
type CreateOrderRequest struct {
	ID         string
	CustomerID string
	Items      []pricing.LineItem
	Shipping   money.Money
	// AwaitPayment starts the order in PENDING_PAYMENT instead of NEW
	AwaitPayment bool
	Actor        string
}

// OrderService manages orders
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*entity.Instance, error)
	GetOrder(ctx context.Context, id string) (*entity.Instance, error)
	ListOrders(ctx context.Context, state domainwf.State, page port.Page) ([]*entity.Instance, error)
	Transition(ctx context.Context, id string, ev domainwf.Event, actor string, input entity.TransitionInput) (*entity.Instance, error)
	PermittedEvents(ctx context.Context, id string) ([]domainwf.Event, error)
	UpdateItems(ctx context.Context, id, actor string, items []pricing.LineItem, shipping money.Money) (*entity.Instance, error)
	RecordPayment(ctx context.Context, id, actor string, amount money.Money, method, externalRef string) (*entity.Instance, error)
	CapturePayment(ctx context.Context, id, actor, paymentID string) (*entity.Instance, error)
	FailPayment(ctx context.Context, id, actor, paymentID string) (*entity.Instance, error)
	RefundPayment(ctx context.Context, id, actor, paymentID string, amount money.Money) (*entity.Instance, error)
	GenerateInvoice(ctx context.Context, id, actor string) (*entity.Invoice, error)
	VoidInvoice(ctx context.Context, id, actor, reason string) (*entity.Instance, error)
	ExportInvoice(ctx context.Context, id string) (*entity.Invoice, []byte, error)
}

type orderServiceImpl struct {
	engine     workflow.FulfillmentEngine
	masterData port.MasterData
	issuer     port.InvoiceIssuer
	renderer   port.InvoiceRenderer
	policy     ledger.Policy
	logger     Logger
}

// NewOrderService creates a new OrderService. masterData may be nil, in
// which case references are not checked.
func NewOrderService(
	engine workflow.FulfillmentEngine,
	masterData port.MasterData,
	issuer port.InvoiceIssuer,
	renderer port.InvoiceRenderer,
	policy ledger.Policy,
	logger Logger,
) OrderService {
	return &orderServiceImpl{
		engine:     engine,
		masterData: masterData,
		issuer:     issuer,
		renderer:   renderer,
		policy:     policy,
		logger:     logger,
	}
}

// CreateOrder prices the items, checks references and persists the order
func (s *orderServiceImpl) CreateOrder(ctx context.Context, req CreateOrderRequest) (*entity.Instance, error) {
	payload, err := entity.NewOrderPayload(req.CustomerID, req.Items, req.Shipping, s.policy)
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, li := range req.Items {
		productIDs = append(productIDs, li.ProductID)
	}
	if err := checkReferences(ctx, s.masterData, req.CustomerID, productIDs...); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	entry := domainwf.StateNew
	if req.AwaitPayment {
		entry = domainwf.StatePendingPayment
	}

	inst, err := s.engine.Create(ctx, entity.NewOrder(id, entry, payload, actorOrSystem(req.Actor), nowUTC()))
	if err != nil {
		s.logger.Error("Failed to create order", "error", err, "order_id", id)
		return nil, err
	}

	s.logger.Info("Order created",
		"order_id", inst.ID,
		"customer_id", req.CustomerID,
		"grand_total", payload.Totals.GrandTotal.String(),
	)
	return inst, nil
}

// GetOrder loads an order
func (s *orderServiceImpl) GetOrder(ctx context.Context, id string) (*entity.Instance, error) {
	return s.engine.Get(ctx, entity.KindOrder, id)
}

// ListOrders lists orders, optionally filtered by state
func (s *orderServiceImpl) ListOrders(ctx context.Context, state domainwf.State, page port.Page) ([]*entity.Instance, error) {
	return s.engine.List(ctx, entity.KindOrder, state, page)
}

// Transition applies a workflow event to an order
func (s *orderServiceImpl) Transition(ctx context.Context, id string, ev domainwf.Event, actor string, input entity.TransitionInput) (*entity.Instance, error) {
	return s.engine.Transition(ctx, entity.KindOrder, id, ev, actor, input)
}

// PermittedEvents lists the events the order's current state defines
func (s *orderServiceImpl) PermittedEvents(ctx context.Context, id string) ([]domainwf.Event, error) {
	return s.engine.PermittedEvents(ctx, entity.KindOrder, id)
}

// UpdateItems replaces the line items of an order that has not been allocated
func (s *orderServiceImpl) UpdateItems(ctx context.Context, id, actor string, items []pricing.LineItem, shipping money.Money) (*entity.Instance, error) {
	if _, err := pricing.Compute(items, shipping); err != nil {
		return nil, err
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	productIDs := make([]string, 0, len(items))
	for _, li := range items {
		productIDs = append(productIDs, li.ProductID)
	}
	if err := checkReferences(ctx, s.masterData, current.Order.CustomerID, productIDs...); err != nil {
		return nil, err
	}

	return s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.UpdateItems(items, shipping))
}

// RecordPayment records a PENDING payment against an order
func (s *orderServiceImpl) RecordPayment(ctx context.Context, id, actor string, amount money.Money, method, externalRef string) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.RecordPayment(amount, method, externalRef))
}

// CapturePayment captures a PENDING payment
func (s *orderServiceImpl) CapturePayment(ctx context.Context, id, actor, paymentID string) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.CapturePayment(paymentID))
}

// FailPayment marks a PENDING payment as failed
func (s *orderServiceImpl) FailPayment(ctx context.Context, id, actor, paymentID string) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.FailPayment(paymentID))
}

// RefundPayment refunds a CAPTURED payment
func (s *orderServiceImpl) RefundPayment(ctx context.Context, id, actor, paymentID string, amount money.Money) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.RefundPayment(paymentID, amount))
}

// GenerateInvoice issues the order's invoice and returns it
func (s *orderServiceImpl) GenerateInvoice(ctx context.Context, id, actor string) (*entity.Invoice, error) {
	inst, err := s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.GenerateInvoice(s.issuer))
	if err != nil {
		return nil, err
	}

	inv, _ := inst.Order.ActiveInvoice()
	s.logger.Info("Invoice generated", "order_id", id, "invoice_number", inv.Number)
	return inv, nil
}

// VoidInvoice voids the order's active invoice
func (s *orderServiceImpl) VoidInvoice(ctx context.Context, id, actor, reason string) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindOrder, id, actor, workflow.VoidInvoice(reason))
}

// ExportInvoice renders the active invoice of an order
func (s *orderServiceImpl) ExportInvoice(ctx context.Context, id string) (*entity.Invoice, []byte, error) {
	inst, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	inv, ok := inst.Order.ActiveInvoice()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoActiveInvoice, id)
	}

	data, err := s.renderer.Render(ctx, inv, inst.Order)
	if err != nil {
		s.logger.Error("Failed to render invoice", "error", err, "order_id", id, "invoice_number", inv.Number)
		return nil, nil, fmt.Errorf("render invoice: %w", err)
	}
	return inv, data, nil
}

// checkReferences resolves the customer and every distinct product concurrently
func checkReferences(ctx context.Context, md port.MasterData, customerID string, productIDs ...string) error {
	if md == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if customerID != "" {
		g.Go(func() error {
			return lookup(gctx, "customer", customerID, func(ctx context.Context, id string) error {
				_, err := md.GetCustomer(ctx, id)
				return err
			})
		})
	}

	seen := make(map[string]bool, len(productIDs))
	for _, pid := range productIDs {
		if pid == "" || seen[pid] {
			continue
		}
		seen[pid] = true
		g.Go(func() error {
			return lookup(gctx, "product", pid, func(ctx context.Context, id string) error {
				_, err := md.GetProduct(ctx, id)
				return err
			})
		})
	}

	return g.Wait()
}

func lookup(ctx context.Context, what, id string, get func(ctx context.Context, id string) error) error {
	if err := get(ctx, id); err != nil {
		if errors.Is(err, port.ErrMasterDataNotFound) {
			return fmt.Errorf("%w: %s %s", ErrUnknownReference, what, id)
		}
		return fmt.Errorf("look up %s %s: %w", what, id, err)
	}
	return nil
}
