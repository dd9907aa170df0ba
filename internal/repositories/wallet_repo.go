package repositories

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-market/backend/internal/models"
	"github.com/shopspring/decimal"
)

type WalletRepo struct {
	db DBTX
}

func NewWalletRepo(db DBTX) *WalletRepo {
	return &WalletRepo{db: db}
}

const walletColumns = `id, account_id, balance, pending_balance, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.AccountID, &w.Balance, &w.PendingBalance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) GetByAccount(ctx context.Context, accountID uuid.UUID) (*models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE account_id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("wallet for account %s", accountID)
	}
	return w, err
}

func (r *WalletRepo) Lock(ctx context.Context, accountIDs ...uuid.UUID) error {
	ids := slices.Clone(accountIDs)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	rows, err := r.db.Query(ctx, `
		SELECT account_id FROM wallets WHERE account_id = ANY($1)
		ORDER BY account_id FOR UPDATE
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != len(ids) {
		return models.NotFoundf("wallet")
	}
	return nil
}

func (r *WalletRepo) Apply(ctx context.Context, accountID uuid.UUID, bucket string, delta decimal.Decimal) (*models.Wallet, error) {
	column := "balance"
	if bucket == models.BucketPending {
		column = "pending_balance"
	}
	query := fmt.Sprintf(`
		UPDATE wallets SET %[1]s = %[1]s + $2, updated_at = $3
		WHERE account_id = $1 AND %[1]s + $2 >= 0
		RETURNING `+walletColumns, column)

	w, err := scanWallet(r.db.QueryRow(ctx, query, accountID, delta, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByAccount(ctx, accountID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s of account %s cannot cover %s", models.ErrInsufficientFunds, column, accountID, delta.Neg())
	}
	return w, err
}

func (r *WalletRepo) AppendTransaction(ctx context.Context, t *models.WalletTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallet_transactions
			(id, wallet_id, account_id, amount, type, bucket, reference_id, reference_type, description, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.WalletID, t.AccountID, t.Amount, t.Type, t.Bucket, t.ReferenceID, t.ReferenceType, t.Description, t.BalanceAfter, t.CreatedAt)
	return err
}

func (r *WalletRepo) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := r.db.Query(ctx, `
		SELECT id, wallet_id, account_id, amount, type, bucket, reference_id, reference_type, description, balance_after, created_at
		FROM wallet_transactions WHERE account_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.AccountID, &t.Amount, &t.Type, &t.Bucket, &t.ReferenceID,
			&t.ReferenceType, &t.Description, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
