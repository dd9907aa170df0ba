package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-market/backend/internal/models"
)

type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Ensure(ctx context.Context, id uuid.UUID, role string) (*models.Account, error) {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (id, role, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, role, now)
	if err != nil {
		return nil, err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO wallets (id, account_id, balance, pending_balance, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, $3)
		ON CONFLICT (account_id) DO NOTHING
	`, uuid.New(), id, now)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *AccountRepo) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.db.QueryRow(ctx, `SELECT id, role, created_at FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Role, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("account %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
