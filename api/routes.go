package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/zetadesk/mailgate/api/handlers"
	"github.com/zetadesk/mailgate/api/middleware"
	"github.com/zetadesk/mailgate/internal/tracing"
	"github.com/zetadesk/mailgate/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.HeaderAPIKey,
		ValidAPIKey: apikey,
	})

	// Health check is open, the status endpoint needs the API key
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", apiKeyMiddleware, handlers.Status(s.IngestService))

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(tracing.TracingEnhancer(context.Background(), "api")) // Add tracing for all /v1/* endpoints
	{
		api.GET("/connections", handlers.Status(s.IngestService))
		api.POST("/audit", handlers.TriggerAudit(s.IngestService))
	}
}
