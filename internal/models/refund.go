package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RefundTypeFull    = "full"
	RefundTypePartial = "partial"

	RefundStatusProcessed = "processed"
)

type Refund struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	EscrowID    uuid.UUID       `json:"escrow_id"`
	InitiatedBy *uuid.UUID      `json:"initiated_by,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt time.Time       `json:"processed_at"`
}
