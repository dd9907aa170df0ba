package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-market/backend/internal/models"
)

type EscrowRepo struct {
	db DBTX
}

func NewEscrowRepo(db DBTX) *EscrowRepo {
	return &EscrowRepo{db: db}
}

const escrowColumns = `id, order_id, buyer_id, seller_id, amount, total_refunded, status, created_at, updated_at, released_at`

func (r *EscrowRepo) Create(ctx context.Context, e *models.Escrow) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := r.db.Exec(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.OrderID, e.BuyerID, e.SellerID, e.Amount, e.TotalRefunded, e.Status, e.CreatedAt, e.UpdatedAt, e.ReleasedAt)
	return err
}

func (r *EscrowRepo) getByOrder(ctx context.Context, orderID uuid.UUID, lock bool) (*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE order_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var e models.Escrow
	err := r.db.QueryRow(ctx, query, orderID).Scan(&e.ID, &e.OrderID, &e.BuyerID, &e.SellerID, &e.Amount,
		&e.TotalRefunded, &e.Status, &e.CreatedAt, &e.UpdatedAt, &e.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("escrow for order %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	return r.getByOrder(ctx, orderID, false)
}

func (r *EscrowRepo) GetByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	return r.getByOrder(ctx, orderID, true)
}

func (r *EscrowRepo) Update(ctx context.Context, e *models.Escrow) error {
	e.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE escrows SET total_refunded = $2, status = $3, released_at = $4, updated_at = $5
		WHERE id = $1
	`, e.ID, e.TotalRefunded, e.Status, e.ReleasedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.NotFoundf("escrow %s", e.ID)
	}
	return nil
}
