package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/policy-oracle/backend/internal/chainwatch"
	"github.com/policy-oracle/backend/internal/config"
	"github.com/policy-oracle/backend/internal/db"
	"github.com/policy-oracle/backend/internal/events"
	"github.com/policy-oracle/backend/internal/evm"
	"github.com/policy-oracle/backend/internal/metrics"
	"github.com/policy-oracle/backend/internal/repositories"
	"github.com/policy-oracle/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !common.IsHexAddress(cfg.EscrowContractAddress) {
		log.Fatal("ESCROW_CONTRACT_ADDRESS is required", zap.String("addr", cfg.EscrowContractAddress))
	}
	contract := common.HexToAddress(cfg.EscrowContractAddress)

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	client, err := evm.DialClient(cfg.EVMRPCURL)
	if err != nil {
		log.Fatal("failed to connect to evm rpc", zap.Error(err))
	}
	defer client.Close()

	// ConfirmExecution never registers, so the registrar is never called here.
	coordinator := services.NewCoordinator(
		repositories.NewEscrowRepo(pool),
		repositories.NewPolicyRepo(pool),
		repositories.NewMemberRepo(pool),
		repositories.NewApprovalRepo(pool),
		services.NewRelayerRegistrar(cfg.RelayerURL, cfg.RelayerToken, cfg.RegistrationMaxRetries, log),
		services.NewRedisLocker(rdb, cfg.LockTTL),
		repositories.NewAuditRepo(pool),
		events.NewRedisPublisher(rdb, log),
		metrics.NewApprovalMetrics(prometheus.NewRegistry()),
		services.CoordinatorConfig{LockTimeout: cfg.LockTimeout},
		log,
	)

	watcher := chainwatch.New(client, chainwatch.NewRedisState(rdb), coordinator, chainwatch.Config{
		Contract:      contract,
		StartBlock:    cfg.ChainStartBlock,
		Confirmations: cfg.ChainConfirmations,
		MaxBlockRange: cfg.ChainMaxBlockRange,
	}, log)

	log.Info("chain watcher started",
		zap.String("contract", contract.Hex()),
		zap.Uint64("confirmations", cfg.ChainConfirmations),
	)

	ticker := time.NewTicker(cfg.ChainPollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			n, err := watcher.Poll(ctx)
			if err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
			if n > 0 {
				log.Info("executions confirmed", zap.Int("count", n))
			}
		case <-sigCh:
			log.Info("shutting down chain watcher")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
