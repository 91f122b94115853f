package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/infra/config"
	"github.com/arklim/workforce-biometric/internal/infra/database"
	kafkainfra "github.com/arklim/workforce-biometric/internal/infra/kafka"
	"github.com/arklim/workforce-biometric/internal/infra/logger"
	redisinfra "github.com/arklim/workforce-biometric/internal/infra/redis"
	"github.com/arklim/workforce-biometric/internal/infra/scheduler"
	"github.com/arklim/workforce-biometric/internal/infra/security"
	"github.com/arklim/workforce-biometric/internal/infra/telemetry"
	postgresrepo "github.com/arklim/workforce-biometric/internal/repository/postgres"
	redisrepo "github.com/arklim/workforce-biometric/internal/repository/redis"
	"github.com/arklim/workforce-biometric/internal/transport/http/middleware"
	"github.com/arklim/workforce-biometric/internal/transport/http/routes"
	"github.com/arklim/workforce-biometric/internal/usecase"
)

// Version is stamped into traces and event envelopes.
var Version = "dev"

const retentionTimeout = 5 * time.Minute

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	tracer    *telemetry.TracerProvider
	scheduler *scheduler.Manager
}

func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	if cfg.Matching.EnhancedDimension != domain.EnhancedDimension {
		return nil, fmt.Errorf("matching.enhanced_dimension must be %d, got %d", domain.EnhancedDimension, cfg.Matching.EnhancedDimension)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			app.close(context.Background())
		}
	}()

	app.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, Version, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	app.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if cfg.App.AutoMigrate {
		if err := migrate(ctx, app.pool, log); err != nil {
			return nil, err
		}
	}

	var rateLimitStore port.RateLimitStore
	if cfg.RateLimit.Backend == "redis" {
		app.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		rateLimitStore = redisrepo.NewRateLimitRepository(app.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: app.redis.KeyPrefix(),
			TTL:       cfg.RateLimit.WindowDuration * 2,
		})
	}

	repos := postgresrepo.NewRepositories(app.pool, rateLimitStore)
	txManager := postgresrepo.NewTxManager(app.pool, rateLimitStore, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			app.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	sealer, err := security.NewVectorSealer(security.Argon2Config{
		Memory:      cfg.Seal.Memory,
		Iterations:  cfg.Seal.Iterations,
		Parallelism: cfg.Seal.Parallelism,
		SaltLength:  cfg.Seal.SaltLength,
		KeyLength:   cfg.Seal.KeyLength,
	}, cfg.Seal.Pepper)
	if err != nil {
		return nil, fmt.Errorf("init vector sealer: %w", err)
	}
	hasher := security.DeviceHasher{}

	gate, err := security.NewGateVerifier(cfg.Gate.Secret, cfg.Gate.Issuer, cfg.Gate.Audience)
	if err != nil {
		return nil, fmt.Errorf("init gate verifier: %w", err)
	}

	metrics, err := telemetry.NewBiometricMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init biometric metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	policy := usecase.NewSecurityPolicy(usecase.PolicyConfig{
		RateLimitWindow:      cfg.RateLimit.WindowDuration,
		RateLimitMaxAttempts: cfg.RateLimit.MaxAttempts,
		Lockout: domain.LockoutPolicy{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Duration:    cfg.Lockout.Duration,
		},
		RejectBlockedDevices: cfg.Policy.RejectBlockedDevices,
	})
	thresholds := domain.MatchThresholds{
		Confidence: cfg.Matching.ConfidenceThreshold,
		Mismatch:   cfg.Matching.MismatchThreshold,
		ExactMatch: cfg.Matching.ExactMatchConfidence,
	}

	profileService := usecase.NewProfileService(repos, txManager.Run, policy, sealer, hasher, eventPublisher, usecase.ProfileOptions{
		MinQuality:            cfg.Matching.MinQuality,
		ConfirmationThreshold: cfg.Matching.ConfirmationThreshold,
	}).WithLogger(log).WithMetrics(metrics)
	verificationEngine := usecase.NewVerificationEngine(txManager.Run, policy, sealer, hasher, eventPublisher, thresholds).
		WithLogger(log).
		WithMetrics(metrics)
	deviceTrust := usecase.NewDeviceTrustService(repos, txManager.Run, eventPublisher).WithLogger(log)
	compliance := usecase.NewComplianceService(repos, txManager.Run, usecase.ComplianceOptions{
		VerificationLogRetention: cfg.Retention.VerificationLogs,
		RateLimitRetention:       cfg.Retention.RateLimitAttempts,
	}).WithLogger(log)

	if cfg.Retention.Enabled {
		app.scheduler, err = scheduler.NewManager(log)
		if err != nil {
			return nil, fmt.Errorf("init scheduler: %w", err)
		}
		if err := app.scheduler.RegisterRetentionJob(compliance, cfg.Retention.Schedule, retentionTimeout); err != nil {
			return nil, fmt.Errorf("register retention job: %w", err)
		}
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(postgresrepo.NewRateLimitRepository(app.pool), log),
		Gate:        gate,
		HTTPMetrics: httpMetrics,
		Database:    app.pool,
		Services: routes.ServiceSet{
			Profiles:   profileService,
			Verifier:   verificationEngine,
			Devices:    deviceTrust,
			Compliance: compliance,
		},
	}
	if app.redis != nil {
		deps.RateLimiter = middleware.NewRateLimiter(rateLimitStore, log)
		deps.Cache = app.redis
	}
	app.engine = routes.Register(deps)

	return app, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	migrator, err := database.NewMigrator(pool, log)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close(context.Background())

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting biometric API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("rate_limit_backend", a.cfg.RateLimit.Backend),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// close releases resources in reverse order of acquisition.
func (a *Application) close(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Warn("failed to stop scheduler", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("failed to shutdown tracer provider", zap.Error(err))
		}
	}
}
