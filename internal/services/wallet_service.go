package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/events"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService is the account-facing side of the wallet ledger.
type WalletService struct {
	store      repositories.Store
	ledger     *WalletLedger
	notifier   *Notifier
	maxDeposit decimal.Decimal
	log        *zap.Logger
}

func NewWalletService(store repositories.Store, ledger *WalletLedger, notifier *Notifier, maxDeposit decimal.Decimal, log *zap.Logger) *WalletService {
	return &WalletService{store: store, ledger: ledger, notifier: notifier, maxDeposit: maxDeposit, log: log}
}

func (s *WalletService) GetWallet(ctx context.Context, actor models.Actor) (*models.Wallet, error) {
	var w *models.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		var err error
		w, err = tx.Wallets().GetByAccount(ctx, actor.AccountID)
		return err
	})
	return w, err
}

func (s *WalletService) Deposit(ctx context.Context, actor models.Actor, amount decimal.Decimal, method string) (*models.WalletTransaction, error) {
	if err := models.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	if s.maxDeposit.IsPositive() && amount.GreaterThan(s.maxDeposit) {
		return nil, models.Validationf("deposit cannot exceed %s", s.maxDeposit.StringFixed(2))
	}
	if !models.IsValidDepositMethod(method) {
		return nil, models.Validationf("unknown deposit method %q", method)
	}

	var t *models.WalletTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		var err error
		t, err = s.ledger.Credit(ctx, tx, actor.AccountID, amount, Entry{
			Type:          models.TxTypeDeposit,
			ReferenceType: models.RefWallet,
			Description:   "deposit via " + method,
		})
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "wallet_deposit", models.EntityWallet, t.WalletID, "%s via %s", amount.StringFixed(2), method)
	})
	if err != nil {
		logFailure(s.log, "deposit failed", err, zap.String("account_id", actor.AccountID.String()))
		return nil, err
	}

	observeTransactions(t)
	s.notifier.Notify(events.EventWalletDeposit, []uuid.UUID{actor.AccountID}, map[string]any{
		"amount":        amount.StringFixed(2),
		"balance_after": t.BalanceAfter.StringFixed(2),
	})
	return t, nil
}

// Transfer moves spendable balance to another existing account. A transfer
// to self is accepted and changes nothing.
func (s *WalletService) Transfer(ctx context.Context, actor models.Actor, to uuid.UUID, amount decimal.Decimal, note string) (out, in *models.WalletTransaction, err error) {
	if err := models.ValidateAmount("amount", amount); err != nil {
		return nil, nil, err
	}
	note = strings.TrimSpace(note)

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		if _, err := tx.Accounts().Get(ctx, to); err != nil {
			return err
		}
		o, i, err := s.ledger.Transfer(ctx, tx, actor.AccountID, to, amount, note)
		if err != nil {
			return err
		}
		out, in = o, i
		if o == nil {
			return nil
		}
		return writeAudit(ctx, tx, actor, "wallet_transfer", models.EntityWallet, o.WalletID, "%s to %s", amount.StringFixed(2), to)
	})
	if err != nil {
		logFailure(s.log, "transfer failed", err, zap.String("from", actor.AccountID.String()), zap.String("to", to.String()))
		return nil, nil, err
	}
	if out == nil {
		return nil, nil, nil
	}

	observeTransactions(out, in)
	s.notifier.Notify(events.EventWalletTransfer, []uuid.UUID{actor.AccountID, to}, map[string]any{
		"from":   actor.AccountID.String(),
		"to":     to.String(),
		"amount": amount.StringFixed(2),
	})
	return out, in, nil
}

// AdminAdjust applies a signed correction to an account's spendable balance.
func (s *WalletService) AdminAdjust(ctx context.Context, actor models.Actor, accountID uuid.UUID, delta decimal.Decimal, reason string) (*models.WalletTransaction, error) {
	if !actor.IsAdmin() {
		return nil, models.Forbiddenf("only admins can adjust balances")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.Validationf("reason is required")
	}

	var t *models.WalletTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		if _, err := tx.Accounts().Get(ctx, accountID); err != nil {
			return err
		}
		var err error
		t, err = s.ledger.Adjust(ctx, tx, accountID, delta, fmt.Sprintf("admin adjustment: %s", reason))
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "wallet_adjusted", models.EntityWallet, t.WalletID, "%s for %s: %s", delta.StringFixed(2), accountID, reason)
	})
	if err != nil {
		logFailure(s.log, "admin adjustment failed", err, zap.String("account_id", accountID.String()))
		return nil, err
	}

	s.log.Info("wallet adjusted",
		zap.String("account_id", accountID.String()),
		zap.String("delta", delta.StringFixed(2)),
		zap.String("admin_id", actor.AccountID.String()),
	)
	observeTransactions(t)
	s.notifier.Notify(events.EventWalletAdjusted, []uuid.UUID{accountID}, map[string]any{
		"amount":        delta.StringFixed(2),
		"balance_after": t.BalanceAfter.StringFixed(2),
	})
	return t, nil
}

// ListTransactions returns an account's ledger, newest first, to its owner or an admin.
func (s *WalletService) ListTransactions(ctx context.Context, actor models.Actor, accountID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	if !actor.IsAdmin() && actor.AccountID != accountID {
		return nil, models.Forbiddenf("cannot read another account's transactions")
	}
	var txs []models.WalletTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		txs, err = tx.Wallets().ListTransactions(ctx, accountID, limit, offset)
		return err
	})
	return txs, err
}
