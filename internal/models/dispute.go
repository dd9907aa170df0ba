package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen           = "open"
	DisputeStatusUnderReview    = "under_review"
	DisputeStatusResolvedBuyer  = "resolved_buyer"
	DisputeStatusResolvedSeller = "resolved_seller"
	DisputeStatusClosed         = "closed"
)

// Order statuses from which a buyer may open a dispute.
var DisputableOrderStatuses = []string{OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered}

type Dispute struct {
	ID         uuid.UUID        `json:"id"`
	OrderID    uuid.UUID        `json:"order_id"`
	BuyerID    uuid.UUID        `json:"buyer_id"`
	SellerID   uuid.UUID        `json:"seller_id"`
	Reason     string           `json:"reason"`
	Status     string           `json:"status"`
	Resolution *string          `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID       `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Messages   []DisputeMessage `json:"messages,omitempty"`
}

func (d *Dispute) IsResolved() bool {
	return d.Status == DisputeStatusResolvedBuyer || d.Status == DisputeStatusResolvedSeller
}

func (d *Dispute) IsParty(accountID uuid.UUID) bool {
	return d.BuyerID == accountID || d.SellerID == accountID
}

type DisputeMessage struct {
	ID        uuid.UUID `json:"id"`
	DisputeID uuid.UUID `json:"dispute_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
