package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EscrowStatusHeld            = "held"
	EscrowStatusReleased        = "released"
	EscrowStatusRefunded        = "refunded"
	EscrowStatusPartialRefunded = "partial_refunded"
)

type Escrow struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Amount        decimal.Decimal `json:"amount"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
}

// Remaining is the amount still refundable or releasable.
func (e *Escrow) Remaining() decimal.Decimal {
	return e.Amount.Sub(e.TotalRefunded)
}

// IsOpen reports whether funds can still leave the escrow.
func (e *Escrow) IsOpen() bool {
	return (e.Status == EscrowStatusHeld || e.Status == EscrowStatusPartialRefunded) && e.Remaining().IsPositive()
}
