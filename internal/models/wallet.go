package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Wallet transaction types
const (
	TxTypeDeposit         = "deposit"
	TxTypePurchase        = "purchase"
	TxTypeEscrowRelease   = "escrow_release"
	TxTypeEscrowRefund    = "escrow_refund"
	TxTypePayout          = "payout"
	TxTypePayoutReversal  = "payout_reversal"
	TxTypeRefundCredit    = "refund_credit"
	TxTypeAdminAdjustment = "admin_adjustment"
	TxTypeTransfer        = "transfer"
)

// Balance buckets
const (
	BucketBalance = "balance"
	BucketPending = "pending"
)

// BucketFor returns which wallet field a transaction type moves.
func BucketFor(txType string) string {
	switch txType {
	case TxTypeEscrowRelease, TxTypePayout, TxTypePayoutReversal:
		return BucketPending
	default:
		return BucketBalance
	}
}

// Reference types
const (
	RefOrder  = "order"
	RefPayout = "payout"
	RefRefund = "refund"
	RefWallet = "wallet"
)

// WalletTransaction is append-only. BalanceAfter snapshots the bucket it moved.
type WalletTransaction struct {
	ID            uuid.UUID       `json:"id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Bucket        string          `json:"bucket"`
	ReferenceID   *uuid.UUID      `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	Description   string          `json:"description"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Deposit methods
const (
	DepositMethodCard         = "card"
	DepositMethodBankTransfer = "bank_transfer"
)

func IsValidDepositMethod(m string) bool {
	return m == DepositMethodCard || m == DepositMethodBankTransfer
}
