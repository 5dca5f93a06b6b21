package api

import (
	"log/slog"
	"net/http"
	"time"

	"bq-operator/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Operator is everything the HTTP surface needs from the warehouse.
type Operator interface {
	service.Warehouse
	Executor
	RowInserter
}

// NewRouter wires middleware and routes. An empty apiKey disables auth.
func NewRouter(op Operator, driver service.ExportDriver, apiKey string) *gin.Engine {
	r := gin.New() // Use New() to skip default logger/recovery middleware for custom ones
	r.Use(gin.Recovery())

	if apiKey != "" {
		r.Use(apiKeyAuth(apiKey))
	}
	r.Use(requestLogger())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = append(config.AllowHeaders, "X-API-Key")
	r.Use(cors.New(config))

	// Health Check Endpoint (Vital for Cloud Run)
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	g := r.Group("/api")
	g.POST("/export", ExportHandler(op, driver))
	g.POST("/query", QueryHandler(op))
	g.POST("/exec", ExecHandler(op))
	g.POST("/stream", StreamHandler(op))
	return r
}

func apiKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// requestLogger logs each request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		msg := "Request processed"
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("client_ip", c.ClientIP()),
		}
		if raw != "" {
			attrs = append(attrs, slog.String("query", raw))
		}

		// Cloud Scheduler specific headers
		if jobName := c.GetHeader("X-CloudScheduler-JobName"); jobName != "" {
			attrs = append(attrs, slog.String("scheduler_job", jobName))
		}
		if scheduleTime := c.GetHeader("X-CloudScheduler-ScheduleTime"); scheduleTime != "" {
			attrs = append(attrs, slog.String("scheduler_time", scheduleTime))
		}

		if status >= 500 {
			slog.Error(msg, attrs...)
		} else {
			slog.Info(msg, attrs...)
		}
	}
}
