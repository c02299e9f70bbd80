package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type TickHandler struct {
	loop Loop
}

func NewTickHandler(loop Loop) *TickHandler {
	return &TickHandler{loop: loop}
}

// Run godoc
// @Summary Run a tick now
// @Description Evaluate every service immediately instead of waiting for the next scheduled tick. Runs synchronously; services already mid-tick are skipped, not queued.
// @Tags Ticks
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Tick result"
// @Failure 401 {object} map[string]string "Not authenticated"
// @Router /ticks [post]
func (h *TickHandler) Run(c *gin.Context) {
	start := time.Now()
	h.loop.RunTick(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"status":      "tick complete",
		"mode":        h.loop.Mode(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
