package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/db"
	"github.com/ledger-market/backend/internal/events"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

// Worker settles payouts that have been processing longer than PAYOUT_SETTLE_DELAY.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("worker requires STORE_DRIVER=postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.Pool("ledger-worker"), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	store := repositories.NewPgStore(pool, repositories.RetryPolicy{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseDelay:   cfg.TxRetryBase,
	}, log)
	notifier := services.NewNotifier(events.NewRedisPublisher(rdb, log), log)
	defer notifier.Wait()

	gateway := services.NewSimulatedGateway(cfg.PayoutGatewayLimit)
	payouts := services.NewPayoutService(store, services.NewWalletLedger(log), gateway, notifier, log)

	log.Info("worker started",
		zap.Duration("settle_interval", cfg.PayoutSettleInterval),
		zap.Duration("settle_delay", cfg.PayoutSettleDelay),
	)

	settleTicker := time.NewTicker(cfg.PayoutSettleInterval)
	defer settleTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-settleTicker.C:
			runPayoutSettlement(ctx, payouts, cfg, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runPayoutSettlement(ctx context.Context, payouts *services.PayoutService, cfg *config.Config, log *zap.Logger) {
	settled, err := payouts.SettleDue(ctx, cfg.PayoutSettleDelay, cfg.PayoutSettleBatch)
	if err != nil {
		log.Error("payout settlement failed", zap.Int("settled", settled), zap.Error(err))
		return
	}
	if settled > 0 {
		log.Info("payouts settled", zap.Int("count", settled))
	}
}
