package api

import (
	"github.com/gin-gonic/gin"

	"github.com/biuroflow/scheduler/internal/logger"
)

// NewRouter builds the gin engine with all administrative routes mounted
// under /api/v1.
func NewRouter(service SchedulerService, health HealthChecker, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := NewHandler(service, health, log)

	router.GET("/healthz", h.healthz)

	v1 := router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", h.registerJob)
			jobs.GET("/stuck", h.stuckJobs)
			jobs.GET("/:id", h.getJob)
			jobs.POST("/:id/pause", h.pauseJob)
			jobs.POST("/:id/resume", h.resumeJob)
			jobs.GET("/:id/next-fire-times", h.nextFireTimes)
			jobs.GET("/:id/history", h.executionHistory)
			jobs.GET("/:id/missed", h.missedExecutions)
			jobs.POST("/:id/missed/resolve", h.resolveMissed)
			jobs.POST("/:id/trigger", h.triggerNow)
			jobs.POST("/:id/force-release", h.forceRelease)
		}
	}
	return router
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
		)
	}
}
