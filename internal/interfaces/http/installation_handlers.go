package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/fulfillment-engine/internal/application/service"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/garyjia/fulfillment-engine/pkg/utils"
)

// CreateInstallation handles POST /api/installations
func (h *Handlers) CreateInstallation(c *gin.Context) {
	var req CreateInstallationRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.installations.CreateInstallation(c.Request.Context(), service.CreateInstallationRequest{
		ID:         req.ID,
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Address:    req.Address,
		Actor:      actor(c, req.Actor),
	})
	if err != nil {
		h.writeError(c, "create_installation", err)
		return
	}
	ok(c, http.StatusCreated, toInstanceResponse(inst))
}

// ListInstallations handles GET /api/installations
func (h *Handlers) ListInstallations(c *gin.Context) {
	state, page, valid := h.bindList(c)
	if !valid {
		return
	}
	installations, err := h.installations.ListInstallations(c.Request.Context(), state, page)
	if err != nil {
		h.writeError(c, "list_installations", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponses(installations))
}

// GetInstallation handles GET /api/installations/:id
func (h *Handlers) GetInstallation(c *gin.Context) {
	inst, err := h.installations.GetInstallation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get_installation", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// InstallationEvents handles GET /api/installations/:id/events
func (h *Handlers) InstallationEvents(c *gin.Context) {
	id := c.Param("id")
	events, err := h.installations.PermittedEvents(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "installation_events", err)
		return
	}
	ok(c, http.StatusOK, EventsResponse{ID: id, Events: events})
}

// TransitionInstallation handles POST /api/installations/:id/transitions
func (h *Handlers) TransitionInstallation(c *gin.Context) {
	var req TransitionRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.installations.Transition(c.Request.Context(), c.Param("id"), domainwf.Event(req.Event), actor(c, req.Actor), req.input())
	if err != nil {
		h.writeError(c, "transition_installation", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// AssignTechnician handles POST /api/installations/:id/technician
func (h *Handlers) AssignTechnician(c *gin.Context) {
	var req AssignTechnicianRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.installations.AssignTechnician(c.Request.Context(), c.Param("id"), actor(c, req.Actor), req.TechnicianID)
	if err != nil {
		h.writeError(c, "assign_technician", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// RecordCompletion handles POST /api/installations/:id/completion
func (h *Handlers) RecordCompletion(c *gin.Context) {
	var req CompletionRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.installations.Complete(c.Request.Context(), c.Param("id"), actor(c, req.Actor), entity.CompletionRecord{
		Readings:  req.Readings,
		DemoGiven: req.DemoGiven,
		Notes:     utils.SanitizeString(req.Notes),
	})
	if err != nil {
		h.writeError(c, "record_completion", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}

// RecordFeedback handles POST /api/installations/:id/feedback
func (h *Handlers) RecordFeedback(c *gin.Context) {
	var req FeedbackRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inst, err := h.installations.RecordFeedback(c.Request.Context(), c.Param("id"), actor(c, req.Actor), req.Rating, utils.SanitizeString(req.Comments))
	if err != nil {
		h.writeError(c, "record_feedback", err)
		return
	}
	ok(c, http.StatusOK, toInstanceResponse(inst))
}
