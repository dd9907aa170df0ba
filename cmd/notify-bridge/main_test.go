package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledger-market/backend/internal/auth"
	"github.com/ledger-market/backend/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestForwardSignsPayload(t *testing.T) {
	received := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- auth.VerifyWebhook("s3cret", r.Header.Get(auth.TimestampHeader), r.Header.Get(auth.SignatureHeader), body, 0)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := &forwarder{url: srv.URL, secret: "s3cret", client: srv.Client(), log: zap.NewNop()}
	f.forward(context.Background(), events.Event{
		Type:       events.EventOrderPaid,
		Recipients: []string{"a"},
		Payload:    map[string]any{"order_id": "o1"},
	})

	select {
	case err := <-received:
		require.NoError(t, err)
	default:
		t.Fatal("webhook was not called")
	}
}

func TestForwardSkipsEventsWithoutRecipients(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := &forwarder{url: srv.URL, client: srv.Client(), log: zap.NewNop()}
	f.forward(context.Background(), events.Event{Type: events.EventOrderPaid})
	assert.False(t, called)
}
