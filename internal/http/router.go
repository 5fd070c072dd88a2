package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/policy-oracle/backend/internal/config"
	"github.com/policy-oracle/backend/internal/http/handlers"
	"github.com/policy-oracle/backend/internal/middleware"
	"github.com/policy-oracle/backend/internal/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	authHandler *handlers.AuthHandler,
	escrowHandler *handlers.EscrowHandler,
	policyHandler *handlers.PolicyHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitMax, cfg.RateLimitWindow))

	// Wallet login (public)
	api.Post("/auth/nonce", authHandler.Nonce)
	api.Post("/auth/login", authHandler.Login)

	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/escrow-statuses", metaHandler.GetEscrowStatuses)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log))
	perm := func(p string) fiber.Handler { return middleware.RequirePermission(p, log) }

	// Escrow approvals
	protected.Get("/escrows/:id/progress", perm(rbac.PermViewEscrow), escrowHandler.GetProgress)
	protected.Get("/escrows/:id/evaluation", perm(rbac.PermViewEscrow), escrowHandler.GetEvaluation)
	protected.Post("/escrows/:id/approvals", perm(rbac.PermApproveEscrow), escrowHandler.AddApproval)
	protected.Delete("/escrows/:id/approvals/:guardianId", perm(rbac.PermApproveEscrow), escrowHandler.CancelApproval)

	// Operator
	protected.Post("/escrows/:id/registration/retry", perm(rbac.PermRetryRegistration), escrowHandler.RetryRegistration)
	protected.Post("/escrows/:id/cancel", perm(rbac.PermCancelEscrow), escrowHandler.CancelEscrow)
	protected.Get("/escrows/:id/audit", perm(rbac.PermViewAudit), escrowHandler.GetAuditLog)

	// Policies
	protected.Post("/policies", perm(rbac.PermManagePolicy), policyHandler.CreatePolicy)
	protected.Get("/policies/:id", perm(rbac.PermViewEscrow), policyHandler.GetPolicy)
	protected.Post("/policies/roots", perm(rbac.PermManagePolicy), policyHandler.BuildRoot)
	protected.Post("/policies/proofs", perm(rbac.PermViewEscrow), policyHandler.BuildProof)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
