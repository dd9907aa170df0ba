package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

const (
	PayoutMethodBankTransfer = "bank_transfer"
	PayoutMethodPaypal       = "paypal"
	PayoutMethodCrypto       = "crypto"
)

func IsValidPayoutMethod(m string) bool {
	return m == PayoutMethodBankTransfer || m == PayoutMethodPaypal || m == PayoutMethodCrypto
}

type Payout struct {
	ID            uuid.UUID       `json:"id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Method        string          `json:"method"`
	Reference     *string         `json:"reference,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	SettlingAt    *time.Time      `json:"-"`
}
