package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/fulfillment-engine/internal/application/service"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/ledger"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// errorMapping maps a sentinel to a status code and a stable error code
type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order. Guard rejections come before side
// effect failures because a rejection raised inside a side effect matches both.
var errorMappings = []errorMapping{
	{domainwf.ErrInstanceNotFound, http.StatusNotFound, "not_found"},
	{ledger.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{service.ErrNoActiveInvoice, http.StatusNotFound, "no_active_invoice"},
	{domainwf.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{domainwf.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{domainwf.ErrInvoiceAlreadyExists, http.StatusConflict, "invoice_already_exists"},
	{domainwf.ErrInvoiceNotAllowedInState, http.StatusConflict, "invoice_not_allowed_in_state"},
	{ledger.ErrInvalidPaymentState, http.StatusConflict, "invalid_payment_state"},
	{domainwf.ErrGuardRejected, http.StatusUnprocessableEntity, "guard_rejected"},
	{ledger.ErrOverpaymentRejected, http.StatusUnprocessableEntity, "overpayment_rejected"},
	{service.ErrUnknownReference, http.StatusUnprocessableEntity, "unknown_reference"},
	{pricing.ErrInvalidLineItem, http.StatusBadRequest, "invalid_line_item"},
	{ledger.ErrInvalidPaymentAmount, http.StatusBadRequest, "invalid_amount"},
	{money.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{entity.ErrInvalidCompletion, http.StatusBadRequest, "invalid_completion"},
	{entity.ErrInvalidFeedback, http.StatusBadRequest, "invalid_feedback"},
	{domainwf.ErrSideEffectFailed, http.StatusBadGateway, "side_effect_failed"},
}

// statusFor returns the HTTP status and error code for err
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err with the mapped status. Server errors hide details.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	status, code := statusFor(err)

	resp := Response{Success: false, Code: code, Error: err.Error()}
	if reason, ok := domainwf.ReasonOf(err); ok {
		resp.Reason = reason
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "path", c.Request.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	if domainwf.IsRetryable(err) {
		resp.Retryable = true
	}

	c.JSON(status, resp)
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Code:    "bad_request",
		Error:   err.Error(),
	})
}
