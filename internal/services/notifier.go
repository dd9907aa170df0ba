package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/events"
	"go.uber.org/zap"
)

// Notifier hands committed events to the notification sink. It never blocks
// or fails the caller.
type Notifier struct {
	publisher events.Publisher
	timeout   time.Duration
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewNotifier(publisher events.Publisher, log *zap.Logger) *Notifier {
	return &Notifier{publisher: publisher, timeout: 3 * time.Second, log: log}
}

func (n *Notifier) Notify(eventType string, recipients []uuid.UUID, payload map[string]any) {
	if n == nil || n.publisher == nil {
		return
	}

	event := events.Event{Type: eventType, Payload: payload}
	seen := make(map[uuid.UUID]bool, len(recipients))
	for _, r := range recipients {
		if r == uuid.Nil || seen[r] {
			continue
		}
		seen[r] = true
		event.Recipients = append(event.Recipients, r.String())
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.publisher.Publish(ctx, events.StreamLedger, event); err != nil {
			n.log.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications are done.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
