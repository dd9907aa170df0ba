package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
)

type AuditService struct {
	store repositories.Store
}

func NewAuditService(store repositories.Store) *AuditService {
	return &AuditService{store: store}
}

func (s *AuditService) ListAudit(ctx context.Context, actor models.Actor, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, models.Forbiddenf("audit log is admin only")
	}
	switch entityType {
	case models.EntityOrder, models.EntityWallet, models.EntityProduct, models.EntityRefund, models.EntityDispute, models.EntityPayout:
	default:
		return nil, models.Validationf("unknown entity type %q", entityType)
	}

	var entries []models.AuditLog
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		entries, err = tx.Audit().GetByEntity(ctx, entityType, entityID, limit, offset)
		return err
	})
	return entries, err
}
