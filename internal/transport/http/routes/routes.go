package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/infra/config"
	"github.com/arklim/workforce-biometric/internal/infra/security"
	"github.com/arklim/workforce-biometric/internal/transport/http/handlers"
	"github.com/arklim/workforce-biometric/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Profiles   handlers.ProfileManager
	Verifier   handlers.Verifier
	Devices    handlers.DeviceTrustManager
	Compliance handlers.ComplianceReporter
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Gate        middleware.GateTokenParser
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}
	if origins := deps.Config.App.CORSOrigins; len(origins) > 0 {
		r.Use(middleware.CORS(origins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if deps.Gate == nil {
		return r
	}

	api := r.Group("/api/v1")
	api.Use(middleware.RequireGate(deps.Gate))
	{
		if deps.Services.Profiles != nil && deps.Services.Verifier != nil {
			biometricGroup := api.Group("/biometric")
			biometricHandler := handlers.NewBiometricHandler(deps.Services.Profiles, deps.Services.Verifier)
			biometricHandler.RegisterRoutes(biometricGroup, buildVerifyMiddlewares(deps)...)
		}

		adminGroup := api.Group("/admin")
		adminGroup.Use(middleware.RequireRole(security.RoleBiometricAdmin))
		adminHandler := handlers.NewAdminHandler(deps.Services.Devices, deps.Services.Compliance)
		adminHandler.RegisterRoutes(adminGroup)
	}

	return r
}

// buildVerifyMiddlewares limits verify calls per client IP and per gate identity in front of the engine's own window.
func buildVerifyMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.HTTPMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.VerifyRules(limit, window)...)}
}
