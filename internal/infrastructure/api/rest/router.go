package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"

	"github.com/wfcore/engine/internal/logger"
)

// NewRouter builds the gin engine exposing the Control API's seven
// operations under /api/v1, plus /health and /ready.
func NewRouter(h *Handlers, db *bun.DB, log *logger.Logger, cors bool) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestLoggerMiddleware(log))
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(TenantMiddleware())

	if cors {
		router.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-Id")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
		})
	}

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/workflows/deploy", h.HandleDeploy)
		apiV1.POST("/executions", h.HandleExecute)
		apiV1.GET("/executions/:executionId", h.HandleGetExecutionStatus)
		apiV1.POST("/executions/:executionId/resume", h.HandleResumeExecution)
		apiV1.POST("/executions/:executionId/rollback", h.HandleRollback)
		apiV1.GET("/executions/:executionId/timeline", h.HandleReplayTimeline)
		apiV1.GET("/executions/:executionId/node-states", h.HandleNodeStates)
	}

	return router
}
