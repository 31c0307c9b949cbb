package mw

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devshad-01/social-task-sub000/internal/logging"
)

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	log := logging.With("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		if status >= 500 {
			ev = log.Error()
		} else if status >= 400 {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Str("user_id", UserID(c)).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
