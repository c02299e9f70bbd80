package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// Loop is the orchestrator surface the handlers drive.
type Loop interface {
	Mode() governor.Mode
	LastSuccessfulTick() time.Time
	RunTick(ctx context.Context)
}

type ServiceHandler struct {
	cfg     *config.Config
	store   store.Store
	runtime runtime.Runtime
	loop    Loop
}

func NewServiceHandler(cfg *config.Config, st store.Store, rt runtime.Runtime, loop Loop) *ServiceHandler {
	return &ServiceHandler{
		cfg:     cfg,
		store:   st,
		runtime: rt,
		loop:    loop,
	}
}

type ServiceStatus struct {
	Name             string                 `json:"name" example:"api"`
	MinReplicas      int                    `json:"min_replicas" example:"1"`
	MaxReplicas      int                    `json:"max_replicas" example:"10"`
	ObservedReplicas int                    `json:"observed_replicas" example:"3"`
	RuntimeError     string                 `json:"runtime_error,omitempty"`
	LastScaledAt     *time.Time             `json:"last_scaled_at,omitempty"`
	Override         *models.ManualOverride `json:"override,omitempty"`
}

// List godoc
// @Summary List services
// @Description Per-service status: configured bounds, observed replicas, last scale time and active override
// @Tags Services
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Service statuses plus cluster mode"
// @Failure 401 {object} map[string]string "Not authenticated"
// @Router /services [get]
func (h *ServiceHandler) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	statuses := make([]ServiceStatus, 0, len(h.cfg.Services))
	for i := range h.cfg.Services {
		spec := &h.cfg.Services[i]
		status := ServiceStatus{
			Name:        spec.Name,
			MinReplicas: spec.MinReplicas,
			MaxReplicas: spec.MaxReplicas,
		}

		if n, err := h.runtime.GetReplicaCount(ctx, spec.Name); err != nil {
			status.RuntimeError = err.Error()
		} else {
			status.ObservedReplicas = n
		}

		if state, err := h.store.GetState(ctx, spec.Name); err == nil && !state.LastScaledAt.IsZero() {
			t := state.LastScaledAt
			status.LastScaledAt = &t
		}

		if o, err := h.store.GetOverride(ctx, spec.Name); err == nil {
			status.Override = o
		}

		statuses = append(statuses, status)
	}

	c.JSON(http.StatusOK, gin.H{
		"services": statuses,
		"count":    len(statuses),
		"mode":     h.loop.Mode(),
	})
}

// Log godoc
// @Summary Scaling log
// @Description Query the append-only scaling log for one service over a time range
// @Tags Services
// @Produce json
// @Security BearerAuth
// @Param name path string true "Service name"
// @Param from query string false "Range start, RFC3339 (default: 24h ago)"
// @Param to query string false "Range end, RFC3339 (default: now)"
// @Param limit query int false "Maximum entries, newest first"
// @Success 200 {object} map[string]interface{} "Log entries"
// @Failure 400 {object} map[string]string "Invalid time range"
// @Failure 401 {object} map[string]string "Not authenticated"
// @Failure 404 {object} map[string]string "Unknown service"
// @Router /services/{name}/log [get]
func (h *ServiceHandler) Log(c *gin.Context) {
	name := c.Param("name")
	if h.cfg.ServiceSpec(name) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}

	from, to, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := parseLimit(c, h.cfg.API.DefaultLimit, h.cfg.API.MaxLimit)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, err := h.store.QueryLog(ctx, name, from, to, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query scaling log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service": name,
		"from":    from,
		"to":      to,
		"entries": entries,
		"count":   len(entries),
	})
}

// parseTimeRange reads the from/to query parameters as RFC3339,
// defaulting to the last 24 hours.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = parsed
	}
	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return from, to, nil
}

func parseLimit(c *gin.Context, def, max int) int {
	if def <= 0 {
		def = 50
	}
	if max <= 0 {
		max = 500
	}

	limit := def
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
