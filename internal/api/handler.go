package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/devshad-01/social-task-sub000/internal/logging"
	"github.com/devshad-01/social-task-sub000/internal/notification"
	"github.com/devshad-01/social-task-sub000/internal/presence"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	engine         *notification.Engine
	tracker        *presence.Tracker
	vapidPublicKey string
	log            zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, e *notification.Engine, t *presence.Tracker, vapidPublicKey string) *Handler {
	return &Handler{
		store:          s,
		engine:         e,
		tracker:        t,
		vapidPublicKey: vapidPublicKey,
		log:            logging.With("api"),
	}
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and hidden behind a 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notification.ErrInvalidRequest),
		errors.Is(err, notification.ErrInvalidClass),
		errors.Is(err, notification.ErrUnknownCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, notification.ErrUnknownUser), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, notification.ErrDrainInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
