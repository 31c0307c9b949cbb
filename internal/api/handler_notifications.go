package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devshad-01/social-task-sub000/internal/mw"
	"github.com/devshad-01/social-task-sub000/internal/notification"
)

type smartRequest struct {
	Category  string         `json:"category" binding:"required"`
	UserID    string         `json:"userId" binding:"required"`
	Title     string         `json:"title" binding:"required"`
	Message   string         `json:"message"`
	ActionURL string         `json:"actionUrl"`
	Data      map[string]any `json:"data"`
	Priority  int            `json:"priority"`
	Class     string         `json:"class"`
	SendAt    *time.Time     `json:"sendAt"`
}

// PostSmart enqueues a category-classified notification.
func (h *Handler) PostSmart(c *gin.Context) {
	var req smartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	r := notification.SmartRequest{
		Category:  notification.Category(req.Category),
		UserID:    req.UserID,
		Title:     req.Title,
		Message:   req.Message,
		ActionURL: req.ActionURL,
		Data:      req.Data,
		Priority:  req.Priority,
	}
	if req.Class != "" {
		class, err := notification.ParseClass(req.Class)
		if err != nil {
			h.writeError(c, err)
			return
		}
		r.Class = class
	}
	if req.SendAt != nil {
		r.SendAt = *req.SendAt
	}
	id, err := h.engine.SendSmart(c.Request.Context(), r)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

type taskDueRequest struct {
	UserID    string    `json:"userId" binding:"required"`
	TaskID    string    `json:"taskId" binding:"required"`
	TaskTitle string    `json:"taskTitle" binding:"required"`
	DueDate   time.Time `json:"dueDate" binding:"required"`
}

// PostTaskDue enqueues a due-date reminder.
func (h *Handler) PostTaskDue(c *gin.Context) {
	var req taskDueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	id, err := h.engine.TaskDueReminder(c.Request.Context(), req.UserID, req.TaskID, req.TaskTitle, req.DueDate)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

type taskAssignedRequest struct {
	UserID     string `json:"userId" binding:"required"`
	TaskID     string `json:"taskId" binding:"required"`
	TaskTitle  string `json:"taskTitle" binding:"required"`
	AssignedBy string `json:"assignedBy"`
}

// PostTaskAssigned enqueues an assignment notice.
func (h *Handler) PostTaskAssigned(c *gin.Context) {
	var req taskAssignedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	id, err := h.engine.SmartTaskAssigned(c.Request.Context(), req.UserID, req.TaskID, req.TaskTitle, req.AssignedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

type meetingAlertRequest struct {
	UserID   string    `json:"userId" binding:"required"`
	Title    string    `json:"title" binding:"required"`
	StartsAt time.Time `json:"startsAt" binding:"required"`
	JoinURL  string    `json:"joinUrl"`
}

// PostMeetingAlert enqueues a short-lived meeting alert.
func (h *Handler) PostMeetingAlert(c *gin.Context) {
	var req meetingAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	id, err := h.engine.MeetingAlert(c.Request.Context(), req.UserID, req.Title, req.StartsAt, req.JoinURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// GetNotifications returns the caller's notification center.
func (h *Handler) GetNotifications(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	rows, err := h.engine.ListForUser(c.Request.Context(), mw.UserID(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}
