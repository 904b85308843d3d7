package http

import (
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/garyjia/fulfillment-engine/pkg/utils"
)

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// InstanceResponse represents an order or installation in API responses
type InstanceResponse struct {
	ID           string                      `json:"id"`
	Kind         entity.Kind                 `json:"kind"`
	State        domainwf.State              `json:"state"`
	HeldFrom     domainwf.State              `json:"held_from,omitempty"`
	Revision     int64                       `json:"revision"`
	CreatedAt    string                      `json:"created_at"`
	UpdatedAt    string                      `json:"updated_at"`
	History      []entity.HistoryEntry       `json:"history"`
	Order        *OrderView                  `json:"order,omitempty"`
	Installation *entity.InstallationPayload `json:"installation,omitempty"`
}

// OrderView adds the derived payment fields to the stored order
type OrderView struct {
	*entity.OrderPayload
	AmountPaid    money.Money   `json:"amount_paid"`
	BalanceDue    money.Money   `json:"balance_due"`
	PaymentStatus ledger.Status `json:"payment_status"`
}

// EventsResponse lists the events permitted from the current state
type EventsResponse struct {
	ID     string           `json:"id"`
	State  domainwf.State   `json:"state,omitempty"`
	Events []domainwf.Event `json:"events"`
}

// ListQuery represents query parameters for listing instances
type ListQuery struct {
	State  string `form:"state"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// CreateOrderRequest is the body of POST /api/orders
type CreateOrderRequest struct {
	ID           string             `json:"id"`
	CustomerID   string             `json:"customer_id" binding:"required"`
	Items        []pricing.LineItem `json:"items" binding:"required,min=1"`
	Shipping     money.Money        `json:"shipping"`
	AwaitPayment bool               `json:"await_payment"`
	Actor        string             `json:"actor"`
}

// TransitionRequest is the body of POST /api/{kind}/:id/transitions
type TransitionRequest struct {
	Event        string                   `json:"event" binding:"required"`
	Actor        string                   `json:"actor"`
	Notes        string                   `json:"notes"`
	Reason       string                   `json:"reason"`
	Schedule     *entity.Schedule         `json:"schedule"`
	TechnicianID string                   `json:"technician_id"`
	Checklist    *entity.Checklist        `json:"checklist"`
	Completion   *entity.CompletionRecord `json:"completion"`
}

// UpdateItemsRequest is the body of PUT /api/orders/:id/items
type UpdateItemsRequest struct {
	Items    []pricing.LineItem `json:"items" binding:"required,min=1"`
	Shipping money.Money        `json:"shipping"`
	Actor    string             `json:"actor"`
}

// PaymentRequest is the body of POST /api/orders/:id/payments
type PaymentRequest struct {
	Amount      money.Money `json:"amount"`
	Method      string      `json:"method" binding:"required"`
	ExternalRef string      `json:"external_ref"`
	Actor       string      `json:"actor"`
}

// RefundRequest is the body of POST /api/orders/:id/payments/:pid/refund.
// A zero amount refunds the whole payment.
type RefundRequest struct {
	Amount money.Money `json:"amount"`
	Actor  string      `json:"actor"`
}

// ActorRequest is the optional body of actions that carry no other input
type ActorRequest struct {
	Actor string `json:"actor"`
}

// VoidInvoiceRequest is the body of POST /api/orders/:id/invoice/void
type VoidInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
	Actor  string `json:"actor"`
}

// CreateInstallationRequest is the body of POST /api/installations
type CreateInstallationRequest struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id" binding:"required"`
	ProductID  string `json:"product_id" binding:"required"`
	Address    string `json:"address"`
	Actor      string `json:"actor"`
}

// AssignTechnicianRequest is the body of POST /api/installations/:id/technician
type AssignTechnicianRequest struct {
	TechnicianID string `json:"technician_id" binding:"required"`
	Actor        string `json:"actor"`
}

// CompletionRequest is the body of POST /api/installations/:id/completion
type CompletionRequest struct {
	Readings  map[string]string `json:"readings"`
	DemoGiven bool              `json:"demo_given"`
	Notes     string            `json:"notes"`
	Actor     string            `json:"actor"`
}

// FeedbackRequest is the body of POST /api/installations/:id/feedback
type FeedbackRequest struct {
	Rating   int    `json:"rating" binding:"required"`
	Comments string `json:"comments"`
	Actor    string `json:"actor"`
}

// toInstanceResponse converts domain entity to API response
func toInstanceResponse(inst *entity.Instance) InstanceResponse {
	resp := InstanceResponse{
		ID:           inst.ID,
		Kind:         inst.Kind,
		State:        inst.State,
		HeldFrom:     inst.HeldFrom,
		Revision:     inst.Revision,
		CreatedAt:    inst.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    inst.UpdatedAt.Format(time.RFC3339),
		History:      inst.History,
		Installation: inst.Installation,
	}
	if inst.Order != nil {
		resp.Order = &OrderView{
			OrderPayload:  inst.Order,
			AmountPaid:    inst.Order.AmountPaid(),
			BalanceDue:    inst.Order.BalanceDue(),
			PaymentStatus: inst.Order.PaymentStatus(),
		}
	}
	return resp
}

func toInstanceResponses(instances []*entity.Instance) []InstanceResponse {
	out := make([]InstanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, toInstanceResponse(inst))
	}
	return out
}

func (r TransitionRequest) input() entity.TransitionInput {
	return entity.TransitionInput{
		Notes:        utils.SanitizeString(r.Notes),
		Reason:       utils.SanitizeString(r.Reason),
		Schedule:     r.Schedule,
		TechnicianID: r.TechnicianID,
		Checklist:    r.Checklist,
		Completion:   r.Completion,
	}
}
