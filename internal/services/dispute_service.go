package services

import (
	"context"
	"slices"
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

const maxDisputeText = 2000

type ResolveInput struct {
	RefundBuyer bool
	// Amount defaults to what remains in escrow.
	Amount     *decimal.Decimal
	Resolution string
	// ReleaseRemainder pays what is left after a partial refund to the seller.
	ReleaseRemainder bool
}

// DisputeService opens disputes, carries the conversation and resolves each
// dispute exactly once.
type DisputeService struct {
	store    repositories.Store
	escrow   *EscrowLedger
	refunds  *RefundEngine
	notifier *Notifier
	log      *zap.Logger
}

func NewDisputeService(store repositories.Store, escrow *EscrowLedger, refunds *RefundEngine, notifier *Notifier, log *zap.Logger) *DisputeService {
	return &DisputeService{store: store, escrow: escrow, refunds: refunds, notifier: notifier, log: log}
}

func validateText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", models.Validationf("%s is required", field)
	}
	if len(v) > maxDisputeText {
		return "", models.Validationf("%s cannot exceed %d characters", field, maxDisputeText)
	}
	return v, nil
}

// Open freezes the order in disputed. Only the buyer may open, once per order.
func (s *DisputeService) Open(ctx context.Context, actor models.Actor, orderID uuid.UUID, reason string) (*models.Dispute, error) {
	reason, err := validateText("reason", reason)
	if err != nil {
		return nil, err
	}

	var dispute *models.Dispute
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != actor.AccountID {
			return models.Forbiddenf("only the buyer can open a dispute for order %s", o.ID)
		}
		if !slices.Contains(models.DisputableOrderStatuses, o.Status) {
			return &models.TransitionError{Entity: "order", From: o.Status, To: models.OrderStatusDisputed}
		}
		if _, err := tx.Disputes().GetByOrder(ctx, o.ID); err == nil {
			return models.Validationf("a dispute already exists for order %s", o.ID)
		}

		d := &models.Dispute{
			OrderID:  o.ID,
			BuyerID:  o.BuyerID,
			SellerID: o.SellerID(),
			Reason:   reason,
			Status:   models.DisputeStatusOpen,
		}
		if err := tx.Disputes().Create(ctx, d); err != nil {
			return err
		}
		if err := transitionOrder(ctx, tx, o, models.OrderStatusDisputed, repositories.OrderPatch{}); err != nil {
			return err
		}
		dispute = d
		return writeAudit(ctx, tx, actor, "dispute_opened", models.EntityDispute, d.ID, "order %s: %s", o.ID, reason)
	})
	if err != nil {
		logFailure(s.log, "open dispute failed", err, zap.String("order_id", orderID.String()))
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(models.OrderStatusDisputed).Inc()
	s.notify(events.EventDisputeOpened, dispute)
	return dispute, nil
}

// AddMessage appends to the dispute thread and moves an open dispute under review.
func (s *DisputeService) AddMessage(ctx context.Context, actor models.Actor, disputeID uuid.UUID, content string) (*models.DisputeMessage, error) {
	content, err := validateText("content", content)
	if err != nil {
		return nil, err
	}

	var msg *models.DisputeMessage
	var dispute *models.Dispute
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		d, err := tx.Disputes().GetForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !d.IsParty(actor.AccountID) {
			return models.Forbiddenf("not a party to dispute %s", d.ID)
		}
		if d.IsResolved() || d.Status == models.DisputeStatusClosed {
			return models.ErrAlreadyResolved
		}

		m := &models.DisputeMessage{DisputeID: d.ID, SenderID: actor.AccountID, Content: content}
		if err := tx.Disputes().AddMessage(ctx, m); err != nil {
			return err
		}
		if d.Status == models.DisputeStatusOpen {
			d.Status = models.DisputeStatusUnderReview
			if err := tx.Disputes().Update(ctx, d); err != nil {
				return err
			}
		}
		msg, dispute = m, d
		return writeAudit(ctx, tx, actor, "dispute_message", models.EntityDispute, d.ID, "message from %s", actor.Role)
	})
	if err != nil {
		logFailure(s.log, "dispute message failed", err, zap.String("dispute_id", disputeID.String()))
		return nil, err
	}

	s.notify(events.EventDisputeMessage, dispute)
	return msg, nil
}

// Resolve settles a dispute either for the buyer (refund) or for the seller
// (release). A dispute is resolved at most once.
func (s *DisputeService) Resolve(ctx context.Context, actor models.Actor, disputeID uuid.UUID, in ResolveInput) (*models.Dispute, error) {
	if !actor.IsAdmin() {
		return nil, models.Forbiddenf("only admins can resolve disputes")
	}
	resolution, err := validateText("resolution", in.Resolution)
	if err != nil {
		return nil, err
	}
	if in.Amount != nil {
		if err := models.ValidateAmount("amount", *in.Amount); err != nil {
			return nil, err
		}
	}

	var dispute *models.Dispute
	var order *models.Order
	var refund *models.Refund
	var moved []*models.WalletTransaction
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		moved = nil
		refund = nil
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		d, err := tx.Disputes().GetForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.IsResolved() {
			return models.ErrAlreadyResolved
		}
		if d.Status == models.DisputeStatusClosed {
			return &models.TransitionError{Entity: "dispute", From: d.Status, To: models.DisputeStatusResolvedBuyer}
		}
		o, err := tx.Orders().GetForUpdate(ctx, d.OrderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderStatusDisputed {
			return &models.TransitionError{Entity: "order", From: o.Status, To: models.OrderStatusCompleted}
		}

		var detail string
		if in.RefundBuyer {
			e, err := tx.Escrows().GetByOrderForUpdate(ctx, o.ID)
			if err != nil {
				return err
			}
			detail = "nothing left in escrow to refund"
			if in.Amount != nil || e.IsOpen() {
				ref, credit, err := s.refunds.Issue(ctx, tx, o, in.Amount, resolution, actor)
				if err != nil {
					return err
				}
				refund = ref
				moved = append(moved, credit)
				detail = "refunded " + ref.Amount.StringFixed(2) + " to buyer"
			}

			if in.ReleaseRemainder {
				e, err := tx.Escrows().GetByOrderForUpdate(ctx, o.ID)
				if err != nil {
					return err
				}
				if e.IsOpen() {
					_, txs, err := s.escrow.Release(ctx, tx, o)
					if err != nil {
						return err
					}
					moved = append(moved, txs...)
					detail += ", remainder " + e.Remaining().StringFixed(2) + " released to seller"
				}
			}
			if err := transitionOrder(ctx, tx, o, models.OrderStatusRefunded, repositories.OrderPatch{}); err != nil {
				return err
			}
			d.Status = models.DisputeStatusResolvedBuyer
		} else {
			e, txs, err := s.escrow.Release(ctx, tx, o)
			if err != nil {
				return err
			}
			moved = append(moved, txs...)
			detail = "released " + e.Remaining().StringFixed(2) + " to seller"
			if err := transitionOrder(ctx, tx, o, models.OrderStatusCompleted, repositories.OrderPatch{}); err != nil {
				return err
			}
			d.Status = models.DisputeStatusResolvedSeller
		}

		now := time.Now().UTC()
		d.Resolution = &resolution
		d.ResolvedBy = actor.IDPtr()
		d.ResolvedAt = &now
		if err := tx.Disputes().Update(ctx, d); err != nil {
			return err
		}
		dispute, order = d, o
		return writeAudit(ctx, tx, actor, "dispute_"+d.Status, models.EntityDispute, d.ID, "%s; %s", detail, resolution)
	})
	if err != nil {
		logFailure(s.log, "resolve dispute failed", err, zap.String("dispute_id", disputeID.String()))
		return nil, err
	}

	s.log.Info("dispute resolved",
		zap.String("dispute_id", dispute.ID.String()),
		zap.String("status", dispute.Status),
		zap.String("order_status", order.Status),
	)
	metrics.OrdersTotal.WithLabelValues(order.Status).Inc()
	if refund != nil {
		metrics.RefundsTotal.WithLabelValues(refund.Type).Inc()
	}
	observeTransactions(moved...)
	s.notify(events.EventDisputeResolved, dispute)
	return dispute, nil
}

// GetDispute returns the dispute with its messages to a party or an admin.
func (s *DisputeService) GetDispute(ctx context.Context, actor models.Actor, disputeID uuid.UUID) (*models.Dispute, error) {
	var dispute *models.Dispute
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		d, err := tx.Disputes().Get(ctx, disputeID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !d.IsParty(actor.AccountID) {
			return models.Forbiddenf("not a party to dispute %s", d.ID)
		}
		d.Messages, err = tx.Disputes().ListMessages(ctx, d.ID)
		if err != nil {
			return err
		}
		dispute = d
		return nil
	})
	return dispute, err
}

// ListDisputes returns the actor's disputes; admins see all of them.
func (s *DisputeService) ListDisputes(ctx context.Context, actor models.Actor, status *string, limit, offset int) ([]models.Dispute, error) {
	filter := repositories.DisputeFilter{Status: status, Limit: limit, Offset: offset}
	if !actor.IsAdmin() {
		filter.PartyID = &actor.AccountID
	}
	var disputes []models.Dispute
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		disputes, err = tx.Disputes().List(ctx, filter)
		return err
	})
	return disputes, err
}

func (s *DisputeService) notify(event string, d *models.Dispute) {
	s.notifier.Notify(event, []uuid.UUID{d.BuyerID, d.SellerID}, map[string]any{
		"dispute_id": d.ID.String(),
		"order_id":   d.OrderID.String(),
		"status":     d.Status,
	})
}
