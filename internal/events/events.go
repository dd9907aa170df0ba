package events

import "context"

// Stream carrying committed ledger events.
const StreamLedger = "events:ledger"

// Event types
const (
	EventOrderPaid        = "order_paid"
	EventOrderShipped     = "order_shipped"
	EventOrderDelivered   = "order_delivered"
	EventOrderCompleted   = "order_completed"
	EventOrderCancelled   = "order_cancelled"
	EventOrderRefunded    = "order_refunded"
	EventRefundIssued     = "refund_issued"
	EventDisputeOpened    = "dispute_opened"
	EventDisputeMessage   = "dispute_message"
	EventDisputeResolved  = "dispute_resolved"
	EventPayoutRequested  = "payout_requested"
	EventPayoutCompleted  = "payout_completed"
	EventPayoutFailed     = "payout_failed"
	EventWalletDeposit    = "wallet_deposit"
	EventWalletTransfer   = "wallet_transfer"
	EventWalletAdjusted   = "wallet_adjusted"
	EventProductRestocked = "product_restocked"

	// EventConnected is sent by the websocket hub only, never published.
	EventConnected = "connected"
)

type Event struct {
	Type       string         `json:"type"`
	Recipients []string       `json:"recipients,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
