package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devshad-01/social-task-sub000/internal/mw"
)

type presenceRequest struct {
	IsOnline *bool `json:"isOnline" binding:"required"`
}

// PostPresence is the client heartbeat.
func (h *Handler) PostPresence(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.tracker.SetPresence(c.Request.Context(), mw.UserID(c), *req.IsOnline); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
