package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EscrowLedger holds a buyer's payment per order until it is released to the
// sellers or refunded to the buyer.
type EscrowLedger struct {
	wallets *WalletLedger
	log     *zap.Logger
}

func NewEscrowLedger(wallets *WalletLedger, log *zap.Logger) *EscrowLedger {
	return &EscrowLedger{wallets: wallets, log: log}
}

// Hold opens the escrow for a freshly paid order.
func (l *EscrowLedger) Hold(ctx context.Context, tx repositories.Tx, order *models.Order) (*models.Escrow, error) {
	e := &models.Escrow{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID(),
		Amount:        order.TotalAmount,
		TotalRefunded: decimal.Zero,
		Status:        models.EscrowStatusHeld,
	}
	if err := tx.Escrows().Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Release credits what remains in escrow to the sellers' pending balances,
// split by their share of the order.
func (l *EscrowLedger) Release(ctx context.Context, tx repositories.Tx, order *models.Order) (*models.Escrow, []*models.WalletTransaction, error) {
	e, err := tx.Escrows().GetByOrderForUpdate(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if e.Status != models.EscrowStatusHeld && e.Status != models.EscrowStatusPartialRefunded {
		return nil, nil, &models.TransitionError{Entity: "escrow", From: e.Status, To: models.EscrowStatusReleased}
	}
	remaining := e.Remaining()
	if !remaining.IsPositive() {
		return nil, nil, fmt.Errorf("%w: escrow exhausted", models.ErrInsufficientFunds)
	}

	var txs []*models.WalletTransaction
	for _, share := range splitByShare(order, remaining) {
		if !share.amount.IsPositive() {
			continue
		}
		t, err := l.wallets.Credit(ctx, tx, share.sellerID, share.amount, Entry{
			Type:          models.TxTypeEscrowRelease,
			ReferenceID:   refTo(order.ID),
			ReferenceType: models.RefOrder,
			Description:   fmt.Sprintf("escrow release for order %s", order.ID),
		})
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, t)
	}

	now := time.Now().UTC()
	e.Status = models.EscrowStatusReleased
	e.ReleasedAt = &now
	if err := tx.Escrows().Update(ctx, e); err != nil {
		return nil, nil, err
	}

	l.log.Info("escrow released",
		zap.String("order_id", order.ID.String()),
		zap.String("amount", remaining.StringFixed(2)),
	)
	return e, txs, nil
}

// Refund returns amount from escrow to the buyer. It never refunds more than
// remains; remainingBefore is the refundable amount prior to this call.
func (l *EscrowLedger) Refund(ctx context.Context, tx repositories.Tx, order *models.Order, amount decimal.Decimal, reason string) (e *models.Escrow, remainingBefore decimal.Decimal, credit *models.WalletTransaction, err error) {
	if err := models.ValidateAmount("refund amount", amount); err != nil {
		return nil, decimal.Zero, nil, err
	}
	e, err = tx.Escrows().GetByOrderForUpdate(ctx, order.ID)
	if err != nil {
		return nil, decimal.Zero, nil, err
	}
	remainingBefore = e.Remaining()

	switch {
	case e.Status == models.EscrowStatusReleased:
		return nil, remainingBefore, nil, &models.TransitionError{Entity: "escrow", From: e.Status, To: models.EscrowStatusRefunded}
	case e.Status == models.EscrowStatusRefunded || !remainingBefore.IsPositive():
		return nil, remainingBefore, nil, fmt.Errorf("%w: escrow exhausted", models.ErrInsufficientFunds)
	case amount.GreaterThan(remainingBefore):
		return nil, remainingBefore, nil, fmt.Errorf("%w: refund %s exceeds remaining escrow %s",
			models.ErrInsufficientFunds, amount.StringFixed(2), remainingBefore.StringFixed(2))
	}

	e.TotalRefunded = e.TotalRefunded.Add(amount)
	if e.Remaining().IsZero() {
		e.Status = models.EscrowStatusRefunded
	} else {
		e.Status = models.EscrowStatusPartialRefunded
	}
	if err := tx.Escrows().Update(ctx, e); err != nil {
		return nil, remainingBefore, nil, err
	}

	desc := fmt.Sprintf("escrow refund for order %s", order.ID)
	if reason != "" {
		desc += ": " + reason
	}
	credit, err = l.wallets.Credit(ctx, tx, e.BuyerID, amount, Entry{
		Type:          models.TxTypeEscrowRefund,
		ReferenceID:   refTo(order.ID),
		ReferenceType: models.RefOrder,
		Description:   desc,
	})
	if err != nil {
		return nil, remainingBefore, nil, err
	}
	return e, remainingBefore, credit, nil
}

type sellerShare struct {
	sellerID uuid.UUID
	amount   decimal.Decimal
}

// splitByShare divides amount between sellers in proportion to their item
// subtotals. Shares are cut to cents and the last seller takes the remainder,
// so the parts always sum to amount.
func splitByShare(order *models.Order, amount decimal.Decimal) []sellerShare {
	sellers, subtotals := order.SellerShares()
	if len(sellers) == 0 {
		return nil
	}
	total := decimal.Zero
	for _, s := range sellers {
		total = total.Add(subtotals[s])
	}

	out := make([]sellerShare, 0, len(sellers))
	allocated := decimal.Zero
	for i, s := range sellers {
		var part decimal.Decimal
		if i == len(sellers)-1 || !total.IsPositive() {
			part = amount.Sub(allocated)
		} else {
			part = amount.Mul(subtotals[s]).Div(total).Truncate(2)
		}
		allocated = allocated.Add(part)
		out = append(out, sellerShare{sellerID: s, amount: part})
		if !total.IsPositive() {
			break
		}
	}
	return out
}
