package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/store"
)

type HealthHandler struct {
	store        store.Store
	querier      collector.Querier
	runtime      runtime.Runtime
	probeService string
	loop         Loop
}

// NewHealthHandler wires the dependency probes. probeService names the
// service used to exercise the runtime; empty skips that check.
func NewHealthHandler(st store.Store, q collector.Querier, rt runtime.Runtime, probeService string, loop Loop) *HealthHandler {
	return &HealthHandler{
		store:        st,
		querier:      q,
		runtime:      rt,
		probeService: probeService,
		loop:         loop,
	}
}

type HealthResponse struct {
	Status      string            `json:"status"`
	Mode        string            `json:"mode,omitempty"`
	LastTick    *time.Time        `json:"last_tick,omitempty"`
	LastTickAge string            `json:"last_tick_age,omitempty"`
	Timestamp   string            `json:"timestamp"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Health godoc
// @Summary Health check
// @Description Overall health: cluster mode, last tick age and dependency probes
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Healthy"
// @Failure 503 {object} HealthResponse "One or more dependencies failing"
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if _, err := h.store.ListOverrides(ctx); err != nil {
		checks["store"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		checks["store"] = "healthy"
	}

	if err := h.querier.HealthCheck(ctx); err != nil {
		checks["metrics"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		checks["metrics"] = "healthy"
	}

	if h.probeService != "" {
		if _, err := h.runtime.ListInstances(ctx, h.probeService); err != nil {
			checks["runtime"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["runtime"] = "healthy"
		}
	}

	resp := HealthResponse{
		Status:    status,
		Mode:      string(h.loop.Mode()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if last := h.loop.LastSuccessfulTick(); !last.IsZero() {
		resp.LastTick = &last
		resp.LastTickAge = time.Since(last).Round(time.Second).String()
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, resp)
}

// Ready godoc
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Ready"
// @Failure 503 {object} HealthResponse "Store unavailable"
// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.store.ListOverrides(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Alive"
// @Router /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
