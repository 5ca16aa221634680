package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/chantiers-api/internal/api/http"
	"github.com/spec-kit/chantiers-api/internal/api/http/handlers"
	"github.com/spec-kit/chantiers-api/internal/audit"
	"github.com/spec-kit/chantiers-api/internal/auth"
	"github.com/spec-kit/chantiers-api/internal/config"
	"github.com/spec-kit/chantiers-api/internal/events"
	"github.com/spec-kit/chantiers-api/internal/observability"
	"github.com/spec-kit/chantiers-api/internal/persistence"
	"github.com/spec-kit/chantiers-api/internal/ratelimit"
	"github.com/spec-kit/chantiers-api/internal/repository"
	"github.com/spec-kit/chantiers-api/internal/service"
	"github.com/spec-kit/chantiers-api/internal/shutdown"
	"github.com/spec-kit/chantiers-api/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logBuffer := observability.NewLogBuffer(cfg.Logger.BufferSize)
	logger, err := observability.NewLogger(cfg.Logger, logBuffer)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("credential store unavailable", zap.Error(err))
		return 1
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
			_ = pg.Close()
			return 1
		}
	}

	var redis *persistence.Redis
	if cfg.UsesRedis() {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Error("redis unavailable", zap.Error(err))
			_ = pg.Close()
			return 1
		}
	}

	userRepo := repository.NewUserRepository(pg.Pool)
	historyRepo := repository.NewLoginHistoryRepository(pg.Pool)

	recorder := audit.NewRecorder(historyRepo, audit.Options{
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: cfg.Audit.WriteTimeout(),
	}, logger, metrics)

	var revocations auth.RevocationStore
	if cfg.Auth.RevocationBackend == config.BackendRedis {
		revocations = auth.NewRedisRevocationStore(redis.Client, cfg.App.Name+":revoked")
	} else {
		memRevocations := auth.NewMemoryRevocationStore()
		memRevocations.StartPruning(ctx, cfg.Auth.AccessTokenTTL())
		revocations = memRevocations
	}

	limiterCfg := ratelimit.Config{Max: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window()}
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == config.BackendRedis {
		limiter = ratelimit.NewRedisLimiter(redis.Client, limiterCfg, cfg.RateLimit.KeyPrefix, logger, metrics)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(limiterCfg)
		memLimiter.StartCleanup(ctx)
		limiter = memLimiter
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(),
		auth.WithClockSkew(cfg.Auth.ClockSkew()),
		auth.WithIssuer(cfg.Auth.Issuer))
	passwords, err := auth.NewPasswordChecker(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("failed to prepare password checker", zap.Error(err))
		return 1
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartMetricsWorker(dispatcher, metrics)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger))

	authService := service.NewAuthService(service.AuthDependencies{
		Users:       userRepo,
		Tokens:      tokens,
		Passwords:   passwords,
		Revocations: revocations,
		Audit:       recorder,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	logService := service.NewLogService(recorder, logBuffer)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ProxyHeader:           cfg.App.ProxyHeader,
		DisableStartupMessage: true,
		ErrorHandler:          httptransport.ErrorHandler(logger, cfg.DiagnosticsEnabled()),
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:      logger,
		Metrics:     metrics,
		Timeout:     cfg.App.RequestTimeout(),
		Diagnostics: cfg.DiagnosticsEnabled(),
	})

	dependencies := map[string]handlers.Pinger{"postgres": pg}
	if redis != nil {
		dependencies["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, cfg.App.Env, dependencies),
		Auth:           handlers.NewAuthHandler(authService),
		Logs:           handlers.NewLogsHandler(logService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, revocations, logger),
		RateLimiter:    ratelimit.Middleware(limiter, ratelimit.ClientIP, logger, metrics),
		Metrics:        metrics,
		MetricsEnabled: cfg.App.MetricsEnabled,
	})

	coordinator := shutdown.NewCoordinator(logger, cfg.Shutdown.DrainTimeout()).
		Then("http", func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		}).
		Then("audit", recorder.Close).
		Parallel(
			shutdown.Step{Name: "redis", Fn: func(context.Context) error { return redis.Close() }},
			shutdown.Step{Name: "postgres", Fn: func(context.Context) error { return pg.Close() }},
		)

	listenFailed := make(chan struct{})
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("env", cfg.App.Env),
			zap.String("rate_limit_backend", cfg.RateLimit.Backend),
			zap.String("revocation_backend", cfg.Auth.RevocationBackend))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Error("fiber listen", zap.Error(err))
			close(listenFailed)
			cancel()
		}
	}()

	shutdownErr := coordinator.Run(ctx)
	select {
	case <-listenFailed:
		return 1
	default:
	}
	if shutdownErr != nil {
		return 1
	}
	return 0
}
