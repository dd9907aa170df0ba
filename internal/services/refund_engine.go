package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/events"
	"github.com/ledger-market/backend/internal/metrics"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RefundEngine issues refunds against escrow and records them.
type RefundEngine struct {
	store    repositories.Store
	escrow   *EscrowLedger
	notifier *Notifier
	log      *zap.Logger
}

func NewRefundEngine(store repositories.Store, escrow *EscrowLedger, notifier *Notifier, log *zap.Logger) *RefundEngine {
	return &RefundEngine{store: store, escrow: escrow, notifier: notifier, log: log}
}

// Issue refunds amount, or everything that remains when amount is nil. The
// caller owns the transaction and the audit entry.
func (r *RefundEngine) Issue(ctx context.Context, tx repositories.Tx, order *models.Order, amount *decimal.Decimal, reason string, actor models.Actor) (*models.Refund, *models.WalletTransaction, error) {
	want := decimal.Zero
	if amount != nil {
		want = *amount
	} else {
		e, err := tx.Escrows().GetByOrderForUpdate(ctx, order.ID)
		if err != nil {
			return nil, nil, err
		}
		want = e.Remaining()
		if !want.IsPositive() {
			return nil, nil, fmt.Errorf("%w: escrow exhausted", models.ErrInsufficientFunds)
		}
	}

	e, remainingBefore, credit, err := r.escrow.Refund(ctx, tx, order, want, reason)
	if err != nil {
		return nil, nil, err
	}

	refundType := models.RefundTypePartial
	if want.GreaterThanOrEqual(remainingBefore) {
		refundType = models.RefundTypeFull
	}
	now := time.Now().UTC()
	refund := &models.Refund{
		OrderID:     order.ID,
		EscrowID:    e.ID,
		InitiatedBy: actor.IDPtr(),
		Amount:      want,
		Type:        refundType,
		Status:      models.RefundStatusProcessed,
		Reason:      reason,
		CreatedAt:   now,
		ProcessedAt: now,
	}
	if err := tx.Refunds().Create(ctx, refund); err != nil {
		return nil, nil, err
	}
	return refund, credit, nil
}

// RefundOrder is an admin refund against an order's escrow. The order status
// is left as is.
func (r *RefundEngine) RefundOrder(ctx context.Context, actor models.Actor, orderID uuid.UUID, amount decimal.Decimal, reason string) (*models.Refund, error) {
	if !actor.IsAdmin() {
		return nil, models.Forbiddenf("only admins can issue refunds")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.Validationf("reason is required")
	}

	var refund *models.Refund
	var order *models.Order
	var credit *models.WalletTransaction
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := r.checkRefundable(ctx, tx, order); err != nil {
			return err
		}
		refund, credit, err = r.Issue(ctx, tx, order, &amount, reason, actor)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "refund_issued", models.EntityRefund, refund.ID,
			"%s refund of %s for order %s: %s", refund.Type, refund.Amount.StringFixed(2), order.ID, reason)
	})
	if err != nil {
		logFailure(r.log, "refund failed", err, zap.String("order_id", orderID.String()))
		return nil, err
	}

	metrics.RefundsTotal.WithLabelValues(refund.Type).Inc()
	observeTransactions(credit)
	r.notifier.Notify(events.EventRefundIssued, []uuid.UUID{order.BuyerID, order.SellerID()}, map[string]any{
		"order_id":  order.ID.String(),
		"refund_id": refund.ID.String(),
		"amount":    refund.Amount.StringFixed(2),
		"type":      refund.Type,
	})
	return refund, nil
}

// checkRefundable keeps admin refunds away from disputed orders. Once a dispute
// exists its resolution is the only thing that moves the escrow.
func (r *RefundEngine) checkRefundable(ctx context.Context, tx repositories.Tx, order *models.Order) error {
	if order.Status == models.OrderStatusDisputed {
		return fmt.Errorf("%w: order %s is disputed, refunds go through dispute resolution",
			models.ErrInvalidTransition, order.ID)
	}
	d, err := tx.Disputes().GetByOrder(ctx, order.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: dispute %s of order %s is %s", models.ErrAlreadyResolved, d.ID, order.ID, d.Status)
}

// ListForOrder returns the refunds of an order to its buyer, its seller or an admin.
func (r *RefundEngine) ListForOrder(ctx context.Context, actor models.Actor, orderID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := canView(actor, order); err != nil {
			return err
		}
		refunds, err = tx.Refunds().ListByOrder(ctx, orderID)
		return err
	})
	return refunds, err
}

func canView(actor models.Actor, order *models.Order) error {
	if actor.IsAdmin() || order.BuyerID == actor.AccountID || order.HasSeller(actor.AccountID) {
		return nil
	}
	return models.Forbiddenf("not a party to order %s", order.ID)
}
