package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-market/backend/internal/models"
)

type PayoutRepo struct {
	db DBTX
}

func NewPayoutRepo(db DBTX) *PayoutRepo {
	return &PayoutRepo{db: db}
}

const payoutColumns = `id, seller_id, amount, status, method, reference, notes, failure_reason, created_at, processed_at, completed_at, settling_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var p models.Payout
	if err := row.Scan(&p.ID, &p.SellerID, &p.Amount, &p.Status, &p.Method, &p.Reference, &p.Notes,
		&p.FailureReason, &p.CreatedAt, &p.ProcessedAt, &p.CompletedAt, &p.SettlingAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) Create(ctx context.Context, p *models.Payout) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.SellerID, p.Amount, p.Status, p.Method, p.Reference, p.Notes, p.FailureReason, p.CreatedAt, p.ProcessedAt, p.CompletedAt, p.SettlingAt)
	return err
}

func (r *PayoutRepo) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	p, err := scanPayout(r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("payout %s", id)
	}
	return p, err
}

// Claim stamps settling_at on a processing payout unless another worker holds
// a claim newer than staleBefore.
func (r *PayoutRepo) Claim(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payouts SET settling_at = $2
		WHERE id = $1 AND status = $3 AND (settling_at IS NULL OR settling_at < $4)
	`, id, at, models.PayoutStatusProcessing, staleBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PayoutRepo) MarkCompleted(ctx context.Context, id uuid.UUID, reference string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payouts SET status = $2, reference = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`, id, models.PayoutStatusCompleted, reference, at, models.PayoutStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payouts SET status = $2, failure_reason = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`, id, models.PayoutStatusFailed, reason, at, models.PayoutStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PayoutRepo) ListDue(ctx context.Context, processedBefore time.Time, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE status = $1 AND processed_at <= $2
		ORDER BY processed_at LIMIT $3
	`, models.PayoutStatusProcessing, processedBefore, limit)
}

func (r *PayoutRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	limit, offset = normalizePage(limit, offset)
	return r.list(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE seller_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, sellerID, limit, offset)
}

func (r *PayoutRepo) list(ctx context.Context, query string, args ...any) ([]models.Payout, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}
