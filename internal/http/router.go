package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/http/handlers"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/rbac"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	walletHandler *handlers.WalletHandler,
	productHandler *handlers.ProductHandler,
	orderHandler *handlers.OrderHandler,
	disputeHandler *handlers.DisputeHandler,
	payoutHandler *handlers.PayoutHandler,
	auditHandler *handlers.AuditHandler,
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
	app.Use(middleware.MetricsMiddleware())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	// Auth (public, development only)
	api.Post("/auth/dev-token", authHandler.DevToken)

	// Public catalogue
	api.Get("/products/:id", productHandler.GetProduct)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	protected.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Wallet
	protected.Get("/me/wallet", walletHandler.GetWallet)
	protected.Get("/me/wallet/transactions", walletHandler.MyTransactions)
	protected.Post("/me/wallet/deposit", walletHandler.Deposit)
	protected.Post("/me/wallet/transfer", middleware.RequirePermission(rbac.PermTransfer), walletHandler.Transfer)

	// Products
	protected.Post("/products", middleware.RequirePermission(rbac.PermManageProducts), productHandler.CreateProduct)
	protected.Post("/products/:id/restock", middleware.RequirePermission(rbac.PermManageProducts), productHandler.Restock)
	protected.Put("/products/:id", middleware.RequirePermission(rbac.PermManageProducts), productHandler.UpdateProduct)
	protected.Delete("/products/:id", middleware.RequirePermission(rbac.PermManageProducts), productHandler.DeactivateProduct)

	// Orders
	protected.Post("/orders", middleware.RequirePermission(rbac.PermPlaceOrder), orderHandler.PlaceOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Post("/orders/:id/ship", middleware.RequirePermission(rbac.PermShipOrder), orderHandler.ShipOrder)
	protected.Post("/orders/:id/deliver", orderHandler.ConfirmDelivery)
	protected.Post("/orders/:id/complete", orderHandler.CompleteOrder)
	protected.Post("/orders/:id/cancel", orderHandler.CancelOrder)

	// Disputes
	protected.Post("/disputes", middleware.RequirePermission(rbac.PermOpenDispute), disputeHandler.OpenDispute)
	protected.Get("/disputes", disputeHandler.ListDisputes)
	protected.Get("/disputes/:id", disputeHandler.GetDispute)
	protected.Post("/disputes/:id/messages", disputeHandler.AddMessage)

	// Payouts
	protected.Post("/payouts", middleware.RequirePermission(rbac.PermRequestPayout), payoutHandler.RequestPayout)
	protected.Get("/payouts", payoutHandler.ListPayouts)
	protected.Get("/payouts/:id", payoutHandler.GetPayout)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware())
	admin.Post("/orders/:id/refunds", middleware.RequirePermission(rbac.PermIssueRefund), orderHandler.IssueRefund)
	admin.Post("/orders/:id/refund-order", middleware.RequirePermission(rbac.PermIssueRefund), orderHandler.AdminRefundOrder)
	admin.Post("/disputes/:id/resolve", middleware.RequirePermission(rbac.PermResolveDispute), disputeHandler.Resolve)
	admin.Post("/accounts/:id/adjust", middleware.RequirePermission(rbac.PermAdjustWallet), walletHandler.Adjust)
	admin.Get("/accounts/:id/transactions", walletHandler.AccountTransactions)
	admin.Post("/payouts/:id/settle", payoutHandler.Settle)
	admin.Get("/audit", middleware.RequirePermission(rbac.PermReadAudit), auditHandler.ListAudit)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
