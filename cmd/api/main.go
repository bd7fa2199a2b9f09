package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/safeflow/procedure-api/pkg/auth"
	"github.com/safeflow/procedure-api/pkg/logger"
	"github.com/safeflow/procedure-api/pkg/messaging/redis"
	"github.com/safeflow/procedure-api/pkg/metrics"
	"github.com/safeflow/procedure-api/pkg/worker"

	"github.com/safeflow/procedure-api/internal/config"
	"github.com/safeflow/procedure-api/internal/handler"
	authHandler "github.com/safeflow/procedure-api/internal/handler/auth"
	permissionHandler "github.com/safeflow/procedure-api/internal/handler/permission"
	submissionHandler "github.com/safeflow/procedure-api/internal/handler/submission"
	"github.com/safeflow/procedure-api/internal/middleware"
	"github.com/safeflow/procedure-api/internal/repository/postgres"
	"github.com/safeflow/procedure-api/internal/router"
	auditService "github.com/safeflow/procedure-api/internal/service/audit"
	authService "github.com/safeflow/procedure-api/internal/service/auth"
	"github.com/safeflow/procedure-api/internal/service/authz"
	permissionService "github.com/safeflow/procedure-api/internal/service/permission"
	"github.com/safeflow/procedure-api/internal/service/workflow"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	unitRepo := postgres.NewUnitRepository(db)
	rbacRepo := postgres.NewRBACRepository(db)
	submissionRepo := postgres.NewSubmissionRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Services
	appMetrics := metrics.NewMetrics("procedure", "api")
	auditor := auditService.NewEmitter(outboxRepo, appLogger)
	resolver := permissionService.NewResolver(rbacRepo, userRepo, appMetrics)
	gate := authz.NewGate(resolver)
	permSvc := permissionService.NewService(rbacRepo, resolver, auditor)

	catalog, err := permissionService.LoadCatalog(context.Background(), rbacRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load permission catalog")
	}

	recipientRouter := workflow.NewRouter(unitRepo, submissionRepo)
	engine := workflow.NewEngine(submissionRepo, unitRepo, recipientRouter, gate, auditor, appMetrics, appLogger)

	jwtExpiry := time.Duration(cfg.JWT.ExpiryHours) * time.Hour
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, jwtExpiry, cfg.JWT.Issuer)
	authSvc := authService.NewService(userRepo, rbacRepo, jwtSvc, jwtExpiry)

	// Middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(authSvc, resolver)
	h := handler.NewHandler(db)
	authH := authHandler.NewHandler(authSvc)
	submissionH := submissionHandler.NewHandler(engine, recipientRouter)
	permissionH := permissionHandler.NewHandler(permSvc, catalog, authMiddleware)

	r := router.NewRouter(authMiddleware, authH, submissionH, permissionH, h, router.Config{
		RateLimit: rate.Limit(cfg.Server.RateLimit),
		RateBurst: cfg.Server.RateBurst,
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	// Audit outbox processor runs in-process; broker failures never touch
	// the request path.
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	processorCtx, stopProcessor := context.WithCancel(context.Background())
	defer stopProcessor()

	outboxProcessor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, appLogger, appMetrics)
	go outboxProcessor.Start(processorCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
