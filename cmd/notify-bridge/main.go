package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ledger-market/backend/internal/auth"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/db"
	"github.com/ledger-market/backend/internal/events"
	"go.uber.org/zap"
)

// Notify Bridge subscribes to committed ledger events in Redis and forwards
// them to NOTIFY_WEBHOOK_URL, signed with NOTIFY_WEBHOOK_SECRET.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.NotifyWebhookSecret == "" {
		log.Warn("NOTIFY_WEBHOOK_SECRET is empty, webhooks are sent unsigned")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	fwd := &forwarder{
		url:    cfg.NotifyWebhookURL,
		secret: cfg.NotifyWebhookSecret,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	subscriber := events.NewRedisSubscriber(rdb, log)
	if err := subscriber.Subscribe(ctx, events.StreamLedger, func(event events.Event) {
		fwd.forward(ctx, event)
	}); err != nil {
		log.Fatal("failed to subscribe", zap.String("stream", events.StreamLedger), zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("url", cfg.NotifyWebhookURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

type forwarder struct {
	url    string
	secret string
	client *http.Client
	log    *zap.Logger
}

func (f *forwarder) forward(ctx context.Context, event events.Event) {
	if len(event.Recipients) == 0 {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		f.log.Error("failed to marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		f.log.Error("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if f.secret != "" {
		now := time.Now()
		req.Header.Set(auth.TimestampHeader, strconv.FormatInt(now.Unix(), 10))
		req.Header.Set(auth.SignatureHeader, auth.SignWebhook(f.secret, now, body))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("failed to forward notification", zap.String("type", event.Type), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		f.log.Warn("webhook returned non-2xx", zap.String("type", event.Type), zap.Int("status", resp.StatusCode))
		return
	}
	f.log.Debug("event forwarded", zap.String("type", event.Type), zap.Strings("recipients", event.Recipients))
}
