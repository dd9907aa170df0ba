package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/metrics"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"go.uber.org/zap"
)

// ensureActor makes sure the acting account and its wallet exist.
func ensureActor(ctx context.Context, tx repositories.Tx, actor models.Actor) error {
	if actor.IsSystem() {
		return nil
	}
	if !models.IsValidRole(actor.Role) {
		return models.Forbiddenf("unknown role %q", actor.Role)
	}
	_, err := tx.Accounts().Ensure(ctx, actor.AccountID, actor.Role)
	return err
}

func writeAudit(ctx context.Context, tx repositories.Tx, actor models.Actor, action, entityType string, entityID uuid.UUID, format string, args ...any) error {
	id := entityID
	return tx.Audit().Log(ctx, models.AuditLog{
		ActorID:    actor.IDPtr(),
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Details:    fmt.Sprintf(format, args...),
	})
}

// isBusinessError reports whether err belongs to the domain taxonomy.
func isBusinessError(err error) bool {
	for _, target := range []error{
		models.ErrValidation, models.ErrInsufficientFunds, models.ErrInsufficientInventory,
		models.ErrInvalidTransition, models.ErrAlreadyResolved, models.ErrNotFound, models.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func logFailure(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if isBusinessError(err) || errors.Is(err, models.ErrConcurrencyConflict) {
		log.Warn(msg, fields...)
		return
	}
	log.Error(msg, fields...)
}

func observeTransactions(txs ...*models.WalletTransaction) {
	for _, t := range txs {
		if t != nil {
			metrics.WalletTransactionsTotal.WithLabelValues(t.Type).Inc()
		}
	}
}
