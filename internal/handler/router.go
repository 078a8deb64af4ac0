package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vhvplatform/go-attendance-service/internal/middleware"
)

// Handlers groups the API handlers mounted by NewRouter
type Handlers struct {
	Schedules     *ScheduleHandler
	Automation    *AutomationHandler
	Settings      *SettingsHandler
	Notifications *NotificationHandler
}

// ReadinessCheck reports whether backing stores are reachable
type ReadinessCheck func(ctx context.Context) error

// NewRouter builds the gin engine with health, metrics and /api/v1 routes
func NewRouter(h Handlers, limiter *middleware.UserRateLimiter, ready ReadinessCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if ready != nil {
			if err := ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(limiter))
	{
		schedules := v1.Group("/schedules")
		{
			schedules.GET("", h.Schedules.GetSchedules)
			schedules.PUT("/:user_id", h.Schedules.ScheduleUser)
			schedules.DELETE("/:user_id", h.Schedules.UnscheduleUser)
		}

		v1.POST("/automation/:user_id/:action", h.Automation.RunAction)
		v1.GET("/leave/:user_id", h.Automation.CheckLeave)

		settings := v1.Group("/settings/:user_id")
		{
			settings.PUT("/credentials", h.Settings.UpdateCredentials)
			settings.PUT("/telegram-token", h.Settings.UpdateTelegram)
		}

		v1.GET("/notifications/:user_id", h.Notifications.GetNotifications)
	}

	return router
}
