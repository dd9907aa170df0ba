package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
)

type RefundRepo struct {
	db DBTX
}

func NewRefundRepo(db DBTX) *RefundRepo {
	return &RefundRepo{db: db}
}

func (r *RefundRepo) Create(ctx context.Context, ref *models.Refund) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO refunds (id, order_id, escrow_id, initiated_by, amount, type, status, reason, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ref.ID, ref.OrderID, ref.EscrowID, ref.InitiatedBy, ref.Amount, ref.Type, ref.Status, ref.Reason, ref.CreatedAt, ref.ProcessedAt)
	return err
}

func (r *RefundRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, escrow_id, initiated_by, amount, type, status, reason, created_at, processed_at
		FROM refunds WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []models.Refund
	for rows.Next() {
		var ref models.Refund
		if err := rows.Scan(&ref.ID, &ref.OrderID, &ref.EscrowID, &ref.InitiatedBy, &ref.Amount, &ref.Type,
			&ref.Status, &ref.Reason, &ref.CreatedAt, &ref.ProcessedAt); err != nil {
			return nil, err
		}
		refunds = append(refunds, ref)
	}
	return refunds, rows.Err()
}
