package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

// SettlementGateway sends money out of the platform.
type SettlementGateway interface {
	Send(ctx context.Context, p *models.Payout) (reference string, err error)
}

// SimulatedGateway accepts every payout up to limit and rejects the rest.
type SimulatedGateway struct {
	limit decimal.Decimal
}

func NewSimulatedGateway(limit decimal.Decimal) *SimulatedGateway {
	return &SimulatedGateway{limit: limit}
}

func (g *SimulatedGateway) Send(ctx context.Context, p *models.Payout) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.limit.IsPositive() && p.Amount.GreaterThan(g.limit) {
		return "", fmt.Errorf("amount %s exceeds gateway limit %s", p.Amount.StringFixed(2), g.limit.StringFixed(2))
	}
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "PAY-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

type PayoutRequest struct {
	Amount decimal.Decimal
	Method string
	Notes  string
}

// PayoutService moves released earnings out of sellers' pending balances.
type PayoutService struct {
	store    repositories.Store
	wallets  *WalletLedger
	gateway  SettlementGateway
	notifier *Notifier
	log      *zap.Logger
}

func NewPayoutService(store repositories.Store, wallets *WalletLedger, gateway SettlementGateway, notifier *Notifier, log *zap.Logger) *PayoutService {
	return &PayoutService{store: store, wallets: wallets, gateway: gateway, notifier: notifier, log: log}
}

// Request debits the seller's pending balance and queues the payout for settlement.
func (s *PayoutService) Request(ctx context.Context, actor models.Actor, req PayoutRequest) (*models.Payout, error) {
	if actor.Role != models.RoleSeller {
		return nil, models.Forbiddenf("only sellers can request payouts")
	}
	if err := models.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	if !models.IsValidPayoutMethod(req.Method) {
		return nil, models.Validationf("unknown payout method %q", req.Method)
	}

	var payout *models.Payout
	var debit *models.WalletTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		now := time.Now().UTC()
		p := &models.Payout{
			ID:          uuid.New(),
			SellerID:    actor.AccountID,
			Amount:      req.Amount,
			Status:      models.PayoutStatusProcessing,
			Method:      req.Method,
			CreatedAt:   now,
			ProcessedAt: &now,
		}
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			p.Notes = &notes
		}

		t, err := s.wallets.Debit(ctx, tx, actor.AccountID, req.Amount, Entry{
			Type:          models.TxTypePayout,
			ReferenceID:   refTo(p.ID),
			ReferenceType: models.RefPayout,
			Description:   fmt.Sprintf("payout via %s", req.Method),
		})
		if err != nil {
			return err
		}
		if err := tx.Payouts().Create(ctx, p); err != nil {
			return err
		}
		payout, debit = p, t
		return writeAudit(ctx, tx, actor, "payout_requested", models.EntityPayout, p.ID, "%s via %s", req.Amount.StringFixed(2), req.Method)
	})
	if err != nil {
		logFailure(s.log, "payout request failed", err, zap.String("seller_id", actor.AccountID.String()))
		return nil, err
	}

	s.log.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("seller_id", payout.SellerID.String()),
		zap.String("amount", payout.Amount.StringFixed(2)),
	)
	metrics.PayoutsTotal.WithLabelValues(payout.Status).Inc()
	observeTransactions(debit)
	s.notify(events.EventPayoutRequested, payout)
	return payout, nil
}

// settleClaimTTL is how long a settlement claim blocks other workers. A
// worker that died mid-send leaves its claim to expire.
const settleClaimTTL = 5 * time.Minute

// Settle sends one processing payout through the gateway. A failed payout is
// credited back to the seller's pending balance. Settling a payout that has
// already left processing, or that another worker is sending, is a no-op.
func (s *PayoutService) Settle(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout *models.Payout
	var claimed bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		claimed = false
		var err error
		payout, err = tx.Payouts().Get(ctx, payoutID)
		if err != nil || payout.Status != models.PayoutStatusProcessing {
			return err
		}
		now := time.Now().UTC()
		claimed, err = tx.Payouts().Claim(ctx, payoutID, now, now.Add(-settleClaimTTL))
		return err
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return payout, nil
	}

	reference, sendErr := s.gateway.Send(ctx, payout)

	var changed bool
	var reversal *models.WalletTransaction
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		reversal = nil
		now := time.Now().UTC()
		var err error
		if sendErr == nil {
			changed, err = tx.Payouts().MarkCompleted(ctx, payout.ID, reference, now)
			if err != nil || !changed {
				return err
			}
			return writeAudit(ctx, tx, models.SystemActor, "payout_completed", models.EntityPayout, payout.ID, "reference %s", reference)
		}

		changed, err = tx.Payouts().MarkFailed(ctx, payout.ID, sendErr.Error(), now)
		if err != nil || !changed {
			return err
		}
		reversal, err = s.wallets.Credit(ctx, tx, payout.SellerID, payout.Amount, Entry{
			Type:          models.TxTypePayoutReversal,
			ReferenceID:   refTo(payout.ID),
			ReferenceType: models.RefPayout,
			Description:   "payout failed: " + sendErr.Error(),
		})
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, models.SystemActor, "payout_failed", models.EntityPayout, payout.ID, "%s", sendErr.Error())
	})
	if err != nil {
		logFailure(s.log, "payout settlement failed", err, zap.String("payout_id", payoutID.String()))
		return nil, err
	}

	settled, err := s.get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return settled, nil
	}

	metrics.PayoutsTotal.WithLabelValues(settled.Status).Inc()
	observeTransactions(reversal)
	if sendErr != nil {
		s.log.Warn("payout failed", zap.String("payout_id", payoutID.String()), zap.Error(sendErr))
		s.notify(events.EventPayoutFailed, settled)
	} else {
		s.log.Info("payout completed", zap.String("payout_id", payoutID.String()), zap.String("reference", reference))
		s.notify(events.EventPayoutCompleted, settled)
	}
	return settled, nil
}

// SettleDue settles up to limit payouts that have been processing for at
// least delay. It returns how many were settled.
func (s *PayoutService) SettleDue(ctx context.Context, delay time.Duration, limit int) (int, error) {
	var due []models.Payout
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		due, err = tx.Payouts().ListDue(ctx, time.Now().UTC().Add(-delay), limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range due {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		res, err := s.Settle(ctx, p.ID)
		if err != nil || res.Status == models.PayoutStatusProcessing {
			continue
		}
		settled++
	}
	return settled, nil
}

// GetPayout returns a payout to its seller or an admin.
func (s *PayoutService) GetPayout(ctx context.Context, actor models.Actor, payoutID uuid.UUID) (*models.Payout, error) {
	p, err := s.get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.SellerID != actor.AccountID {
		return nil, models.Forbiddenf("payout %s belongs to another seller", p.ID)
	}
	return p, nil
}

func (s *PayoutService) ListPayouts(ctx context.Context, actor models.Actor, limit, offset int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		payouts, err = tx.Payouts().ListBySeller(ctx, actor.AccountID, limit, offset)
		return err
	})
	return payouts, err
}

func (s *PayoutService) get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var p *models.Payout
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		p, err = tx.Payouts().Get(ctx, id)
		return err
	})
	return p, err
}

func (s *PayoutService) notify(event string, p *models.Payout) {
	s.notifier.Notify(event, []uuid.UUID{p.SellerID}, map[string]any{
		"payout_id": p.ID.String(),
		"amount":    p.Amount.StringFixed(2),
		"status":    p.Status,
	})
}
