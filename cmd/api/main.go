package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/db"
	"github.com/ledger-market/backend/internal/events"
	apphttp "github.com/ledger-market/backend/internal/http"
	"github.com/ledger-market/backend/internal/http/handlers"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/ledger-market/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, _ := zap.NewProduction()
	if cfg.IsDevelopment() {
		log, _ = zap.NewDevelopment()
	}
	defer log.Sync()

	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store      repositories.Store
		publisher  events.Publisher
		subscriber events.Subscriber
		rdb        *redis.Client
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		bus := events.NewLocalBus()
		store, publisher, subscriber = repositories.NewMemoryStore(), bus, bus
	default:
		// Database
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.Pool("ledger-api"), log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}

		// Redis
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		store = repositories.NewPgStore(pool, repositories.RetryPolicy{
			MaxAttempts: cfg.TxMaxAttempts,
			BaseDelay:   cfg.TxRetryBase,
		}, log)
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
	}

	// Services
	notifier := services.NewNotifier(publisher, log)
	inventory := services.NewInventoryReservation(log)
	ledger := services.NewWalletLedger(log)
	escrow := services.NewEscrowLedger(ledger, log)
	refunds := services.NewRefundEngine(store, escrow, notifier, log)

	walletService := services.NewWalletService(store, ledger, notifier, cfg.MaxDeposit, log)
	productService := services.NewProductService(store, inventory, notifier, log)
	orderService := services.NewOrderService(store, inventory, ledger, escrow, refunds, notifier, log)
	disputeService := services.NewDisputeService(store, escrow, refunds, notifier, log)
	payoutService := services.NewPayoutService(store, ledger, services.NewSimulatedGateway(cfg.PayoutGatewayLimit), notifier, log)
	auditService := services.NewAuditService(store)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, log)
	walletHandler := handlers.NewWalletHandler(walletService, log)
	productHandler := handlers.NewProductHandler(productService, log)
	orderHandler := handlers.NewOrderHandler(orderService, refunds, log)
	disputeHandler := handlers.NewDisputeHandler(disputeService, log)
	payoutHandler := handlers.NewPayoutHandler(payoutService, log)
	auditHandler := handlers.NewAuditHandler(auditService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, walletHandler, productHandler, orderHandler, disputeHandler, payoutHandler, auditHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		_ = app.Shutdown()
		notifier.Wait()
		cancel()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
