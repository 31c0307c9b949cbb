package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/devshad-01/social-task-sub000/config"
	"github.com/devshad-01/social-task-sub000/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, v *mw.TokenValidator, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	statsTTL := time.Duration(cfg.StatsCacheTTL) * time.Second
	caching := mw.Cache(cache.New(statsTTL, 2*statsTTL), statsTTL)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/push/vapid_public_key", rateLimiter, h.GetVAPIDPublicKey)

	authed := api.Group("")
	authed.Use(mw.Auth(v), rateLimiter)
	{
		authed.GET("/push/subscriptions", h.GetSubscriptions)
		authed.PUT("/push/subscriptions", h.PutSubscription)
		authed.DELETE("/push/subscriptions", h.DeleteSubscription)

		authed.POST("/presence", h.PostPresence)

		authed.GET("/notifications", h.GetNotifications)

		producers := authed.Group("/notifications", mw.RequireRole(mw.RoleService, mw.RoleAdmin))
		producers.POST("/smart", h.PostSmart)
		producers.POST("/task-due", h.PostTaskDue)
		producers.POST("/task-assigned", h.PostTaskAssigned)
		producers.POST("/meeting-alert", h.PostMeetingAlert)

		admin := authed.Group("/admin", mw.RequireAdmin())
		admin.GET("/queue/stats", caching, h.GetQueueStats)
		admin.POST("/queue/process", h.PostProcessQueue)
		admin.POST("/reminders/overdue", h.PostOverdueReminders)
	}

	return r
}
