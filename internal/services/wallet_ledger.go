package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Entry describes why money moves.
type Entry struct {
	Type          string
	ReferenceID   *uuid.UUID
	ReferenceType string
	Description   string
}

func refTo(id uuid.UUID) *uuid.UUID {
	return &id
}

// WalletLedger is the only code that changes wallet balances. Every change
// appends a transaction in the same atomic unit.
type WalletLedger struct {
	log *zap.Logger
}

func NewWalletLedger(log *zap.Logger) *WalletLedger {
	return &WalletLedger{log: log}
}

func (l *WalletLedger) Credit(ctx context.Context, tx repositories.Tx, accountID uuid.UUID, amount decimal.Decimal, e Entry) (*models.WalletTransaction, error) {
	if err := models.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, accountID, amount, e)
}

// Debit fails with ErrInsufficientFunds when the bucket holds less than amount.
func (l *WalletLedger) Debit(ctx context.Context, tx repositories.Tx, accountID uuid.UUID, amount decimal.Decimal, e Entry) (*models.WalletTransaction, error) {
	if err := models.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, accountID, amount.Neg(), e)
}

// Adjust applies a signed admin correction to the spendable balance.
func (l *WalletLedger) Adjust(ctx context.Context, tx repositories.Tx, accountID uuid.UUID, delta decimal.Decimal, reason string) (*models.WalletTransaction, error) {
	if delta.IsZero() {
		return nil, models.Validationf("adjustment must not be zero")
	}
	if err := models.ValidateAmount("adjustment", delta.Abs()); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, accountID, delta, Entry{
		Type:          models.TxTypeAdminAdjustment,
		ReferenceType: models.RefWallet,
		Description:   reason,
	})
}

// Transfer moves amount between two spendable balances. A transfer to self
// changes nothing and returns no transactions.
func (l *WalletLedger) Transfer(ctx context.Context, tx repositories.Tx, from, to uuid.UUID, amount decimal.Decimal, note string) (out, in *models.WalletTransaction, err error) {
	if err := models.ValidateAmount("amount", amount); err != nil {
		return nil, nil, err
	}
	if from == to {
		return nil, nil, nil
	}
	if err := tx.Wallets().Lock(ctx, from, to); err != nil {
		return nil, nil, err
	}

	desc := note
	if desc == "" {
		desc = "wallet transfer"
	}
	out, err = l.apply(ctx, tx, from, amount.Neg(), Entry{
		Type:          models.TxTypeTransfer,
		ReferenceID:   &to,
		ReferenceType: models.RefWallet,
		Description:   fmt.Sprintf("%s (to %s)", desc, to),
	})
	if err != nil {
		return nil, nil, err
	}
	in, err = l.apply(ctx, tx, to, amount, Entry{
		Type:          models.TxTypeTransfer,
		ReferenceID:   &from,
		ReferenceType: models.RefWallet,
		Description:   fmt.Sprintf("%s (from %s)", desc, from),
	})
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

func (l *WalletLedger) apply(ctx context.Context, tx repositories.Tx, accountID uuid.UUID, delta decimal.Decimal, e Entry) (*models.WalletTransaction, error) {
	bucket := models.BucketFor(e.Type)
	w, err := tx.Wallets().Apply(ctx, accountID, bucket, delta)
	if err != nil {
		return nil, err
	}

	after := w.Balance
	if bucket == models.BucketPending {
		after = w.PendingBalance
	}
	t := &models.WalletTransaction{
		WalletID:      w.ID,
		AccountID:     accountID,
		Amount:        delta,
		Type:          e.Type,
		Bucket:        bucket,
		ReferenceID:   e.ReferenceID,
		ReferenceType: e.ReferenceType,
		Description:   e.Description,
		BalanceAfter:  after,
	}
	if err := tx.Wallets().AppendTransaction(ctx, t); err != nil {
		return nil, err
	}

	l.log.Debug("wallet transaction appended",
		zap.String("account_id", accountID.String()),
		zap.String("type", e.Type),
		zap.String("amount", delta.StringFixed(2)),
		zap.String("balance_after", after.StringFixed(2)),
	)
	return t, nil
}
