package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/service-autoscaler/api/middleware"
	"github.com/OldStager01/service-autoscaler/internal/events"
	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/pkg/config"
)

type OverrideHandler struct {
	cfg       *config.Config
	governor  *governor.Governor
	store     store.Store
	publisher *events.Publisher
}

func NewOverrideHandler(cfg *config.Config, g *governor.Governor, st store.Store, pub *events.Publisher) *OverrideHandler {
	return &OverrideHandler{
		cfg:       cfg,
		governor:  g,
		store:     st,
		publisher: pub,
	}
}

type SetOverrideRequest struct {
	Replicas int    `json:"replicas" binding:"required,min=1" example:"5"`
	Reason   string `json:"reason" example:"load test"`
}

// Set godoc
// @Summary Set manual override
// @Description Pin a service to a fixed replica count until cleared. The value must lie within the configured bounds.
// @Tags Overrides
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param name path string true "Service name"
// @Param request body SetOverrideRequest true "Override"
// @Success 200 {object} models.ManualOverride
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Not authenticated"
// @Failure 404 {object} map[string]string "Unknown service"
// @Failure 422 {object} map[string]string "Replicas outside configured bounds"
// @Router /services/{name}/override [put]
func (h *OverrideHandler) Set(c *gin.Context) {
	name := c.Param("name")
	spec := h.cfg.ServiceSpec(name)
	if spec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}

	var req SetOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	setBy := middleware.GetUsername(c)
	o, err := h.governor.SetOverride(ctx, spec, req.Replicas, setBy)
	if err != nil {
		if errors.Is(err, governor.ErrOverrideOutOfBounds) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set override"})
		return
	}

	if h.publisher != nil {
		h.publisher.OverrideSet(o)
	}
	c.JSON(http.StatusOK, o)
}

// Clear godoc
// @Summary Clear manual override
// @Description Release a pinned service back to automatic scaling
// @Tags Overrides
// @Produce json
// @Security BearerAuth
// @Param name path string true "Service name"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string "Not authenticated"
// @Failure 404 {object} map[string]string "Unknown service or no active override"
// @Router /services/{name}/override [delete]
func (h *OverrideHandler) Clear(c *gin.Context) {
	name := c.Param("name")
	if h.cfg.ServiceSpec(name) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.governor.ClearOverride(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active override"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear override"})
		return
	}

	if h.publisher != nil {
		h.publisher.OverrideCleared(name, middleware.GetUsername(c))
	}
	c.JSON(http.StatusOK, gin.H{"service": name, "status": "override cleared"})
}

// List godoc
// @Summary List active overrides
// @Description All services currently pinned to a manual replica count
// @Tags Overrides
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "Not authenticated"
// @Router /overrides [get]
func (h *OverrideHandler) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	overrides, err := h.store.ListOverrides(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list overrides"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"overrides": overrides,
		"count":     len(overrides),
	})
}
