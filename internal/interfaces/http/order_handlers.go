package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/fulfillment-engine/internal/application/service"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/garyjia/fulfillment-engine/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateOrder handles POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if !h.bindJSON(c, &req, false) {
		return
	}

	inst, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderRequest{
		ID:           req.ID,
		CustomerID:   req.CustomerID,
		Items:        req.Items,
		Shipping:     req.Shipping,
		AwaitPayment: req.AwaitPayment,
		Actor:        actor(c, req.Actor),
	})
	if err != nil {
		h.writeError(c, "create_order", err)
		return
	}
	ok(c, http.StatusCreated, toInstanceResponse(inst))
}

// ListOrders handles GET /api/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	state, page, valid := h.bindList(c)
	if !valid {
		return
	}
	orders, err := h.orders.ListOrders(c.Request.Context(), state, page)
	if err != nil {
		h.writeError(c, "list_orders", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponses(orders))
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	inst, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get_order", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// OrderEvents handles GET /api/orders/:id/events
func (h *Handlers) OrderEvents(c *gin.Context) {
	id := c.Param("id")
	events, err := h.orders.PermittedEvents(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "order_events", err)
		return
	}
	ok(c, http.StatusOK, EventsResponse{ID: id, Events: events})
}

// TransitionOrder handles POST /api/orders/:id/transitions
func (h *Handlers) TransitionOrder(c *gin.Context) {
	var req TransitionRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.orders.Transition(c.Request.Context(), c.Param("id"), domainwf.Event(req.Event), actor(c, req.Actor), req.input())
	if err != nil {
		h.writeError(c, "transition_order", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// UpdateOrderItems handles PUT /api/orders/:id/items
func (h *Handlers) UpdateOrderItems(c *gin.Context) {
	var req UpdateItemsRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.orders.UpdateItems(c.Request.Context(), c.Param("id"), actor(c, req.Actor), req.Items, req.Shipping)
	if err != nil {
		h.writeError(c, "update_items", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// RecordPayment handles POST /api/orders/:id/payments
func (h *Handlers) RecordPayment(c *gin.Context) {
	var req PaymentRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.orders.RecordPayment(c.Request.Context(), c.Param("id"), actor(c, req.Actor), req.Amount, req.Method, req.ExternalRef)
	if err != nil {
		h.writeError(c, "record_payment", err)
		return
	}
	ok(c, http.StatusCreated, toInstanceResponse(inst))
}

// CapturePayment handles POST /api/orders/:id/payments/:pid/capture
func (h *Handlers) CapturePayment(c *gin.Context) {
	var req ActorRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	inst, err := h.orders.CapturePayment(c.Request.Context(), c.Param("id"), actor(c, req.Actor), c.Param("pid"))
	if err != nil {
		h.writeError(c, "capture_payment", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// FailPayment handles POST /api/orders/:id/payments/:pid/fail
func (h *Handlers) FailPayment(c *gin.Context) {
	var req ActorRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	inst, err := h.orders.FailPayment(c.Request.Context(), c.Param("id"), actor(c, req.Actor), c.Param("pid"))
	if err != nil {
		h.writeError(c, "fail_payment", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// RefundPayment handles POST /api/orders/:id/payments/:pid/refund
func (h *Handlers) RefundPayment(c *gin.Context) {
	var req RefundRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	inst, err := h.orders.RefundPayment(c.Request.Context(), c.Param("id"), actor(c, req.Actor), c.Param("pid"), req.Amount)
	if err != nil {
		h.writeError(c, "refund_payment", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// GenerateInvoice handles POST /api/orders/:id/invoice
func (h *Handlers) GenerateInvoice(c *gin.Context) {
	var req ActorRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	inv, err := h.orders.GenerateInvoice(c.Request.Context(), c.Param("id"), actor(c, req.Actor))
	if err != nil {
		h.writeError(c, "generate_invoice", err)
		return
	}
	ok(c, http.StatusCreated, inv)
}

// VoidInvoice handles POST /api/orders/:id/invoice/void
func (h *Handlers) VoidInvoice(c *gin.Context) {
	var req VoidInvoiceRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.orders.VoidInvoice(c.Request.Context(), c.Param("id"), actor(c, req.Actor), utils.SanitizeString(req.Reason))
	if err != nil {
		h.writeError(c, "void_invoice", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// ExportInvoice handles GET /api/orders/:id/invoice.xlsx
func (h *Handlers) ExportInvoice(c *gin.Context) {
	inv, data, err := h.orders.ExportInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "export_invoice", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, inv.Number))
	c.Data(http.StatusOK, xlsxContentType, data)
}
