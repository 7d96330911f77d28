package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "gemini-relay-api/docs"
	"gemini-relay-api/internal/middleware"
	"gemini-relay-api/internal/services"
)

// RouterConfig holds configuration for setting up routes
type RouterConfig struct {
	Endpoint       string
	PromptRelay    services.PromptRelay
	RateLimitRPS   float64
	RateLimitBurst int
	MetricsEnabled bool
	MetricsPath    string
	SwaggerEnabled bool
}

// SetupRoutes configures all routes
func SetupRoutes(router *gin.Engine, config *RouterConfig) {
	promptHandler := NewPromptHandler(config.PromptRelay)

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "/api/gemini"
	}

	// The relay decides what each method means, so every method reaches it
	relay := router.Group("")
	relay.Use(middleware.SecurityHeaders())
	relay.Use(middleware.RateLimiter(config.RateLimitRPS, config.RateLimitBurst))
	{
		relay.Any(endpoint, promptHandler.Relay)
	}

	if config.MetricsEnabled {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	if config.SwaggerEnabled {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.NoRoute(middleware.NoRoute())
}

// SetupMiddleware configures global middleware. Successful requests under quietPaths
// are logged at debug level.
func SetupMiddleware(router *gin.Engine, logger logrus.FieldLogger, quietPaths ...string) {
	// Request ID
	router.Use(middleware.RequestID())

	// Structured logging
	router.Use(middleware.StructuredLogger(logger, quietPaths...))

	// Panics become JSON internal errors
	router.Use(middleware.Recovery())

	// Generation is slow by nature; only flag the outliers
	router.Use(middleware.PerformanceMonitor(logger, 0))
}

// NewRouter builds a gin engine with middleware and routes
func NewRouter(config *RouterConfig, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = false
	SetupMiddleware(router, logger, config.MetricsPath, "/swagger/")
	SetupRoutes(router, config)
	return router
}
