package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/policy-oracle/backend/internal/auth"
	"github.com/policy-oracle/backend/internal/config"
	"github.com/policy-oracle/backend/internal/db"
	"github.com/policy-oracle/backend/internal/events"
	apphttp "github.com/policy-oracle/backend/internal/http"
	"github.com/policy-oracle/backend/internal/http/handlers"
	"github.com/policy-oracle/backend/internal/metrics"
	"github.com/policy-oracle/backend/internal/repositories"
	"github.com/policy-oracle/backend/internal/services"
	"github.com/policy-oracle/backend/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.PostgresMaxConn)}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	approvalMetrics := metrics.NewApprovalMetrics(reg)

	// Repositories
	escrowRepo := repositories.NewEscrowRepo(pool)
	policyRepo := repositories.NewPolicyRepo(pool)
	memberRepo := repositories.NewMemberRepo(pool)
	approvalRepo := repositories.NewApprovalRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	registrar := services.NewRelayerRegistrar(cfg.RelayerURL, cfg.RelayerToken, cfg.RegistrationMaxRetries, log)
	coordinator := services.NewCoordinator(
		escrowRepo, policyRepo, memberRepo, approvalRepo,
		registrar,
		services.NewRedisLocker(rdb, cfg.LockTTL),
		auditRepo, publisher, approvalMetrics,
		services.CoordinatorConfig{
			RegistrationTimeout: cfg.RegistrationTimeout,
			LockTimeout:         cfg.LockTimeout,
		},
		log,
	)
	sessions := services.NewSessionService(
		auth.NewRedisNonceStore(rdb, cfg.NonceTTL),
		memberRepo,
		auditRepo,
		services.SessionConfig{
			JWTSecret:     cfg.JWTSecret,
			JWTExpiration: cfg.JWTExpiration,
			IsOperator:    cfg.IsOperator,
		},
		log,
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(sessions, log)
	escrowHandler := handlers.NewEscrowHandler(coordinator, auditRepo, log)
	policyHandler := handlers.NewPolicyHandler(policyRepo, log)
	wsHub := handlers.NewWSHub(cfg.JWTSecret, subscriber, publisher, log)

	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe websocket hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, reg, authHandler, escrowHandler, policyHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
