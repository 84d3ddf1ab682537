package handlers

import (
	"net/http"

	"github.com/Dours-d/D2C/cmd/docs"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/middleware"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"
)

type routeOptions struct {
	health         HealthCheck
	webhookLimiter *limiter.Limiter
	metrics        http.Handler
}

// RouteOption configures RegisterRoutes.
type RouteOption func(*routeOptions)

// WithHealthCheck makes /health report the result of check.
func WithHealthCheck(check HealthCheck) RouteOption {
	return func(o *routeOptions) {
		o.health = check
	}
}

// WithWebhookLimiter rate limits the provider webhooks by client IP.
func WithWebhookLimiter(l *limiter.Limiter) RouteOption {
	return func(o *routeOptions) {
		o.webhookLimiter = l
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.metrics = h
	}
}

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	opts ...RouteOption,
) {
	o := &routeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	r.GET("/health", getHealth(o.health))
	if o.metrics != nil {
		r.GET("/metrics", gin.WrapH(o.metrics))
	}

	// Provider callbacks authenticate by quote id, not by operator token
	webhooks := r.Group("")
	if o.webhookLimiter != nil {
		webhooks.Use(middleware.RateLimit(o.webhookLimiter))
	}
	RegisterWebhookRoutes(webhooks, services.Batches)

	setupAPIV1Routes(r, cfg, services)
	setupSwaggerRoutes(r, cfg)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	service *portssvc.ServiceContainer,
) {
	v1 := r.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

	RegisterBatchRoutes(v1, service.Batches, service.Settlement)
	RegisterSettlementRoutes(v1, service.Settlement)
	RegisterFeeRoutes(v1, service.Fees)
	RegisterCycleRoutes(v1, service.Cycles)
	RegisterExchangeRateRoutes(v1, service.ExchangeRate)
}

// setupSwaggerRoutes configures the swagger documentation routes
func setupSwaggerRoutes(r *gin.Engine, cfg *config.Config) {
	if cfg.IsProduction {
		//no swagger in prod
		return
	}
	docs.SwaggerInfo.BasePath = "/api/v1"
	swagger := r.Group("/swagger")
	swagger.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
