package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/service"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// actorHeader names the caller when the body does not
const actorHeader = "X-Actor"

// HealthCheck reports whether the service is healthy, with per-component details
type HealthCheck func(ctx context.Context) (bool, interface{})

// Handlers contains all HTTP request handlers
type Handlers struct {
	orders        service.OrderService
	installations service.InstallationService
	health        HealthCheck
	logger        Logger
}

// NewHandlers creates a new Handlers instance. health may be nil.
func NewHandlers(
	orders service.OrderService,
	installations service.InstallationService,
	health HealthCheck,
	logger Logger,
) *Handlers {
	return &Handlers{
		orders:        orders,
		installations: installations,
		health:        health,
		logger:        logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy := true
	var components interface{}
	if h.health != nil {
		healthy, components = h.health(c.Request.Context())
	}

	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    Version,
		Components: components,
	}
	status := http.StatusOK
	if !healthy {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{
		Success: healthy,
		Data:    response,
	})
}

// bindJSON binds the body into req. An empty body is accepted when optional is set.
func (h *Handlers) bindJSON(c *gin.Context, req interface{}, optional bool) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		h.badRequest(c, err)
		return false
	}
	return true
}

// bindList parses list query parameters into a state filter and page
func (h *Handlers) bindList(c *gin.Context) (domainwf.State, port.Page, bool) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return "", port.Page{}, false
	}
	state := domainwf.State(q.State)
	if state != "" && !state.IsValid() {
		h.badRequest(c, errors.New("unknown state: "+q.State))
		return "", port.Page{}, false
	}
	return state, port.Page{Limit: q.Limit, Offset: q.Offset}, true
}

// actor prefers the body's actor, then the X-Actor header
func actor(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.GetHeader(actorHeader)
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}
