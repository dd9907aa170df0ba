package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-market/backend/internal/models"
)

type DisputeRepo struct {
	db DBTX
}

func NewDisputeRepo(db DBTX) *DisputeRepo {
	return &DisputeRepo{db: db}
}

const disputeColumns = `id, order_id, buyer_id, seller_id, reason, status, resolution, resolved_by, resolved_at, created_at, updated_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	if err := row.Scan(&d.ID, &d.OrderID, &d.BuyerID, &d.SellerID, &d.Reason, &d.Status, &d.Resolution,
		&d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := r.db.Exec(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.OrderID, d.BuyerID, d.SellerID, d.Reason, d.Status, d.Resolution, d.ResolvedBy, d.ResolvedAt, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *DisputeRepo) getOne(ctx context.Context, where string, arg any, lock bool) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE ` + where
	if lock {
		query += ` FOR UPDATE`
	}
	d, err := scanDispute(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("dispute")
	}
	return d, err
}

func (r *DisputeRepo) Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.getOne(ctx, "id = $1", id, false)
}

func (r *DisputeRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.getOne(ctx, "id = $1", id, true)
}

func (r *DisputeRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	return r.getOne(ctx, "order_id = $1", orderID, false)
}

func (r *DisputeRepo) Update(ctx context.Context, d *models.Dispute) error {
	d.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE disputes SET status = $2, resolution = $3, resolved_by = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1
	`, d.ID, d.Status, d.Resolution, d.ResolvedBy, d.ResolvedAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.NotFoundf("dispute %s", d.ID)
	}
	return nil
}

func (r *DisputeRepo) AddMessage(ctx context.Context, m *models.DisputeMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.DisputeID, m.SenderID, m.Content, m.CreatedAt)
	return err
}

func (r *DisputeRepo) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, dispute_id, sender_id, content, created_at
		FROM dispute_messages WHERE dispute_id = $1 ORDER BY created_at, id
	`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.DisputeMessage
	for rows.Next() {
		var m models.DisputeMessage
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *DisputeRepo) List(ctx context.Context, filter DisputeFilter) ([]models.Dispute, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	var where []string
	var args []any
	argN := 1
	if filter.PartyID != nil {
		where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", argN, argN))
		args = append(args, *filter.PartyID)
		argN++
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, *filter.Status)
		argN++
	}

	query := `SELECT ` + disputeColumns + ` FROM disputes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}
