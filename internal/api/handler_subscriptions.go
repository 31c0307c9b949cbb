package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/devshad-01/social-task-sub000/internal/model"
	"github.com/devshad-01/social-task-sub000/internal/mw"
)

// putSubscriptionRequest is the browser's PushSubscription.toJSON() shape.
type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256DH string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// PutSubscription registers the caller's device. Re-registering an endpoint
// updates it in place and moves it to the caller.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if u, err := url.Parse(req.Endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint must be an https URL"})
		return
	}

	sub := model.PushSubscription{
		UserID:   mw.UserID(c),
		Endpoint: req.Endpoint,
		P256DH:   req.Keys.P256DH,
		Auth:     req.Keys.Auth,
	}
	if err := h.store.UpsertSubscription(c.Request.Context(), &sub); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's endpoints. Endpoints owned
// by someone else are left alone and the response does not tell them apart.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.store.RemoveSubscription(c.Request.Context(), mw.UserID(c), req.Endpoint); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscriptions lists the caller's registered endpoints.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	subs, err := h.store.ListSubscriptions(c.Request.Context(), mw.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}
