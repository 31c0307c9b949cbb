package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetQueueStats returns queue statistics.
func (h *Handler) GetQueueStats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// PostProcessQueue runs one drain pass now. It answers 409 while another pass
// is running.
func (h *Handler) PostProcessQueue(c *gin.Context) {
	report, err := h.engine.Drain(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PostOverdueReminders sends a reminder for every overdue task.
func (h *Handler) PostOverdueReminders(c *gin.Context) {
	report, err := h.engine.SendOverdueReminders(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
