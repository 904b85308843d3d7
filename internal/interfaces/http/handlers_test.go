package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/service"
	"github.com/garyjia/fulfillment-engine/internal/application/workflow"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/external/masterdata"
	"github.com/garyjia/fulfillment-engine/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type stubIssuer struct{ count int }

func (s *stubIssuer) Issue(ctx context.Context, req port.IssueRequest) (*port.IssuedInvoice, error) {
	s.count++
	return &port.IssuedInvoice{InvoiceNumber: fmt.Sprintf("INV-%06d", s.count), IRN: "irn-" + req.IdempotencyKey}, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, inv *entity.Invoice, order *entity.OrderPayload) ([]byte, error) {
	return []byte("xlsx:" + inv.Number), nil
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	Reason    string          `json:"reason"`
	Retryable bool            `json:"retryable"`
}

type instanceBody struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Revision int64  `json:"revision"`
	History  []struct {
		Actor string `json:"actor"`
		Notes string `json:"notes"`
	} `json:"history"`
	Order *struct {
		Totals struct {
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
		Ledger struct {
			Payments []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payments"`
		} `json:"ledger"`
		AmountPaid    string `json:"amount_paid"`
		BalanceDue    string `json:"balance_due"`
		PaymentStatus string `json:"payment_status"`
	} `json:"order"`
	Installation *struct {
		Technician *struct {
			Name string `json:"name"`
		} `json:"technician"`
		Completion *struct {
			Notes string `json:"notes"`
		} `json:"completion"`
	} `json:"installation"`
}

func newTestRouter(t *testing.T, health HealthCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	md := masterdata.NewStatic(masterdata.Seed{
		Customers:   []port.Customer{{ID: "CUST-1", Name: "Asha"}},
		Products:    []port.Product{{ID: "RO-100", Name: "RO purifier"}},
		Technicians: []port.Technician{{ID: "T-1", Name: "Ravi", Active: true}},
	})
	engine := workflow.NewEngine(memory.NewInstanceRepository(),
		workflow.WithDefinition(entity.KindOrder, workflow.NewOrderDefinition()),
		workflow.WithDefinition(entity.KindInstallation, workflow.NewInstallationDefinition(md)),
	)
	orders := service.NewOrderService(engine, md, &stubIssuer{}, stubRenderer{}, ledger.Policy{AllowOverpayment: true}, nopLogger{})
	installations := service.NewInstallationService(engine, md, nopLogger{})

	server := NewServer(DefaultServerConfig(), orders, installations, health, nopLogger{})
	return server.Router()
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(actorHeader, "tester")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decodeInstance(t *testing.T, env envelope) instanceBody {
	t.Helper()
	var inst instanceBody
	require.NoError(t, json.Unmarshal(env.Data, &inst))
	return inst
}

var orderBody = map[string]interface{}{
	"id":          "ord-1",
	"customer_id": "CUST-1",
	"items": []map[string]interface{}{{
		"product_id":       "RO-100",
		"quantity":         2,
		"unit_price":       "1000",
		"discount_percent": "10",
		"gst_rate":         "18",
	}},
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t, nil)
	w, env := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	down := newTestRouter(t, func(ctx context.Context) (bool, interface{}) {
		return false, map[string]string{"database": "unreachable"}
	})
	w, env = do(t, down, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, string(env.Data), "unreachable")
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)

	w, env := do(t, r, http.MethodPost, "/api/orders", orderBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeInstance(t, env)
	assert.Equal(t, "NEW", created.State)
	assert.Equal(t, "2124.00", created.Order.Totals.GrandTotal)
	assert.Equal(t, "PENDING", created.Order.PaymentStatus)
	assert.Equal(t, "tester", created.History[0].Actor)

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/payments", map[string]interface{}{"amount": "2124", "method": "UPI"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pid := decodeInstance(t, env).Order.Ledger.Payments[0].ID

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/payments/"+pid+"/capture", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := decodeInstance(t, env)
	assert.Equal(t, "PAID", paid.Order.PaymentStatus)
	assert.Equal(t, "0.00", paid.Order.BalanceDue)

	w, _ = do(t, r, http.MethodPost, "/api/orders/ord-1/invoice", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "invoice only in CONFIRMED")

	w, _ = do(t, r, http.MethodPost, "/api/orders/ord-1/transitions", map[string]interface{}{"event": "CONFIRMED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/invoice", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), "INV-000001")

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/invoice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invoice_already_exists", env.Code)

	w, _ = do(t, r, http.MethodGet, "/api/orders/ord-1/invoice.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "INV-000001.xlsx")
	assert.Equal(t, "xlsx:INV-000001", w.Body.String())

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/transitions", map[string]interface{}{"event": "CANCELLED"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "guard_rejected", env.Code)
	assert.Equal(t, "cancellation reason required", env.Reason)

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/transitions", map[string]interface{}{"event": "DELIVERED"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "illegal_transition", env.Code)

	w, env = do(t, r, http.MethodGet, "/api/orders/ord-1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events EventsResponse
	require.NoError(t, json.Unmarshal(env.Data, &events))
	assert.Contains(t, events.Events, "ALLOCATED")

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/transitions",
		map[string]interface{}{"event": "CANCELLED", "reason": "customer request"})
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decodeInstance(t, env)
	assert.Equal(t, "CANCELLED", cancelled.State)
	assert.Equal(t, "customer request", cancelled.History[len(cancelled.History)-1].Notes)

	w, env = do(t, r, http.MethodPost, "/api/orders/ord-1/transitions", map[string]interface{}{"event": "REFUNDED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refunded := decodeInstance(t, env)
	assert.Equal(t, "REFUNDED", refunded.State)
	assert.Equal(t, "REFUNDED", refunded.Order.Ledger.Payments[0].Status)
}

func TestOrderRequestErrors(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"missing items", http.MethodPost, "/api/orders", map[string]interface{}{"customer_id": "CUST-1"}, http.StatusBadRequest, "bad_request"},
		{"unknown customer", http.MethodPost, "/api/orders", map[string]interface{}{
			"customer_id": "CUST-9",
			"items":       []map[string]interface{}{{"product_id": "RO-100", "quantity": 1, "unit_price": "10"}},
		}, http.StatusUnprocessableEntity, "unknown_reference"},
		{"invalid line item", http.MethodPost, "/api/orders", map[string]interface{}{
			"customer_id": "CUST-1",
			"items":       []map[string]interface{}{{"product_id": "RO-100", "quantity": 0, "unit_price": "10"}},
		}, http.StatusBadRequest, "invalid_line_item"},
		{"bad amount", http.MethodPost, "/api/orders", map[string]interface{}{
			"customer_id": "CUST-1",
			"items":       []map[string]interface{}{{"product_id": "RO-100", "quantity": 1, "unit_price": "10.001"}},
		}, http.StatusBadRequest, "bad_request"},
		{"missing order", http.MethodGet, "/api/orders/nope", nil, http.StatusNotFound, "not_found"},
		{"bad state filter", http.MethodGet, "/api/orders?state=LOST", nil, http.StatusBadRequest, "bad_request"},
		{"void without reason", http.MethodPost, "/api/orders/nope/invoice/void", map[string]interface{}{}, http.StatusBadRequest, "bad_request"},
		{"no active invoice", http.MethodGet, "/api/orders/nope/invoice.xlsx", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, env.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestListOrders(t *testing.T) {
	r := newTestRouter(t, nil)
	for _, id := range []string{"ord-1", "ord-2"} {
		body := map[string]interface{}{}
		for k, v := range orderBody {
			body[k] = v
		}
		body["id"] = id
		w, _ := do(t, r, http.MethodPost, "/api/orders", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, _ := do(t, r, http.MethodPost, "/api/orders/ord-2/transitions", map[string]interface{}{"event": "CONFIRMED"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, http.MethodGet, "/api/orders?state=CONFIRMED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []instanceBody
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "ord-2", list[0].ID)

	w, env = do(t, r, http.MethodGet, "/api/orders?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestInstallationLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)

	w, _ := do(t, r, http.MethodPost, "/api/installations", map[string]interface{}{
		"id": "ins-1", "customer_id": "CUST-1", "product_id": "RO-100", "address": "12 MG Road",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = do(t, r, http.MethodPost, "/api/installations/ins-1/transitions", map[string]interface{}{
		"event":    "SCHEDULED",
		"schedule": map[string]string{"date": "2026-04-03T00:00:00Z", "slot": "AM"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = do(t, r, http.MethodPost, "/api/installations/ins-1/transitions", map[string]interface{}{"event": "ASSIGNED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	checklist := map[string]bool{"site_ready": true, "power_available": true, "water_supply_available": true, "customer_present": true}
	w, env := do(t, r, http.MethodPost, "/api/installations/ins-1/transitions", map[string]interface{}{
		"event": "IN_PROGRESS", "checklist": checklist,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "technician required", env.Reason)

	w, env = do(t, r, http.MethodPost, "/api/installations/ins-1/technician", map[string]interface{}{"technician_id": "T-404"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w, env = do(t, r, http.MethodPost, "/api/installations/ins-1/technician", map[string]interface{}{"technician_id": "T-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ravi", decodeInstance(t, env).Installation.Technician.Name)

	w, _ = do(t, r, http.MethodPost, "/api/installations/ins-1/transitions", map[string]interface{}{
		"event": "IN_PROGRESS", "checklist": checklist,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, r, http.MethodPost, "/api/installations/ins-1/feedback", map[string]interface{}{"rating": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "feedback before completion")

	w, env = do(t, r, http.MethodPost, "/api/installations/ins-1/completion", map[string]interface{}{
		"readings": map[string]string{"tds_in": "420", "tds_out": "35"}, "demo_given": true, "notes": "done",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decodeInstance(t, env)
	assert.Equal(t, "COMPLETED", completed.State)
	assert.Equal(t, "done", completed.Installation.Completion.Notes)

	w, _ = do(t, r, http.MethodPost, "/api/installations/ins-1/feedback", map[string]interface{}{"rating": 5, "comments": "great"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env = do(t, r, http.MethodPost, "/api/installations/ins-1/feedback", map[string]interface{}{"rating": 4})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "feedback already recorded", env.Reason)

	w, _ = do(t, r, http.MethodGet, "/api/orders/ins-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "kind mismatch")
}

func TestStatusFor(t *testing.T) {
	status, code := statusFor(fmt.Errorf("wrapped: %w", ledger.ErrOverpaymentRejected))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "overpayment_rejected", code)

	status, code = statusFor(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}
