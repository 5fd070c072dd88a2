package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/policy-oracle/backend/internal/config"
	"github.com/policy-oracle/backend/internal/db"
	"github.com/policy-oracle/backend/internal/events"
	"github.com/policy-oracle/backend/internal/metrics"
	"github.com/policy-oracle/backend/internal/repositories"
	"github.com/policy-oracle/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 5}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	coordinator := services.NewCoordinator(
		repositories.NewEscrowRepo(pool),
		repositories.NewPolicyRepo(pool),
		repositories.NewMemberRepo(pool),
		repositories.NewApprovalRepo(pool),
		services.NewRelayerRegistrar(cfg.RelayerURL, cfg.RelayerToken, cfg.RegistrationMaxRetries, log),
		services.NewRedisLocker(rdb, cfg.LockTTL),
		repositories.NewAuditRepo(pool),
		events.NewRedisPublisher(rdb, log),
		metrics.NewApprovalMetrics(reg),
		services.CoordinatorConfig{
			RegistrationTimeout: cfg.RegistrationTimeout,
			LockTimeout:         cfg.LockTimeout,
		},
		log,
	)

	go serveMetrics(cfg.WorkerPort, reg, log)

	log.Info("worker started")

	// Run jobs on tickers
	expiryTicker := time.NewTicker(cfg.ExpiryInterval)
	staleTicker := time.NewTicker(cfg.StaleRecoveryInterval)
	retryTicker := time.NewTicker(cfg.RetrySweepInterval)
	releaseTicker := time.NewTicker(cfg.ReleaseInterval)
	defer expiryTicker.Stop()
	defer staleTicker.Stop()
	defer retryTicker.Stop()
	defer releaseTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	batch := cfg.WorkerBatchSize

	for {
		select {
		case <-expiryTicker.C:
			runJob(ctx, "expire_overdue", log, func(ctx context.Context) (int, error) {
				return coordinator.ExpireOverdue(ctx, batch)
			})
		case <-staleTicker.C:
			runJob(ctx, "recover_stale_registrations", log, func(ctx context.Context) (int, error) {
				return coordinator.RecoverStaleRegistrations(ctx, cfg.StaleRegistrationAge, batch)
			})
		case <-retryTicker.C:
			runJob(ctx, "retry_pending_registrations", log, func(ctx context.Context) (int, error) {
				return coordinator.RetryPendingRegistrations(ctx, cfg.RetrySweepMinAge, batch)
			})
		case <-releaseTicker.C:
			runJob(ctx, "release_due", log, func(ctx context.Context) (int, error) {
				return coordinator.ReleaseDue(ctx, batch)
			})
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runJob(ctx context.Context, name string, log *zap.Logger, job func(context.Context) (int, error)) {
	start := time.Now()
	n, err := job(ctx)
	if err != nil {
		log.Error("worker job failed", zap.String("job", name), zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("worker job done",
			zap.String("job", name),
			zap.Int("processed", n),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func serveMetrics(port string, reg *prometheus.Registry, log *zap.Logger) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	addr := fmt.Sprintf(":%s", port)
	log.Info("worker metrics listening", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Error("worker metrics server stopped", zap.Error(err))
	}
}
