package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledger-market/backend/internal/metrics"
	"go.uber.org/zap"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore runs atomic units as Postgres transactions.
type PgStore struct {
	pool        *pgxpool.Pool
	policy      RetryPolicy
	lockTimeout string
	log         *zap.Logger
}

func NewPgStore(pool *pgxpool.Pool, policy RetryPolicy, log *zap.Logger) *PgStore {
	return &PgStore{pool: pool, policy: policy, lockTimeout: "2s", log: log}
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.policy.Run(ctx, s.onConflict, func(ctx context.Context) error {
		return s.runOnce(ctx, fn)
	})
}

func (s *PgStore) onConflict(attempt int, err error) {
	metrics.TxConflictsTotal.Inc()
	s.log.Debug("transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
}

func (s *PgStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return convertErr(err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, rbErr)
		}
	}()

	// Lock waits surface as 55P03 and are retried instead of blocking.
	if _, err = tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", s.lockTimeout); err != nil {
		return convertErr(err)
	}

	if err = fn(ctx, &pgTx{q: tx}); err != nil {
		return convertErr(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return convertErr(err)
	}
	return nil
}

type pgTx struct {
	q DBTX
}

func (t *pgTx) Accounts() AccountRepository { return NewAccountRepo(t.q) }
func (t *pgTx) Wallets() WalletRepository   { return NewWalletRepo(t.q) }
func (t *pgTx) Products() ProductRepository { return NewProductRepo(t.q) }
func (t *pgTx) Orders() OrderRepository     { return NewOrderRepo(t.q) }
func (t *pgTx) Escrows() EscrowRepository   { return NewEscrowRepo(t.q) }
func (t *pgTx) Refunds() RefundRepository   { return NewRefundRepo(t.q) }
func (t *pgTx) Disputes() DisputeRepository { return NewDisputeRepo(t.q) }
func (t *pgTx) Payouts() PayoutRepository   { return NewPayoutRepo(t.q) }
func (t *pgTx) Audit() AuditRepository      { return NewAuditRepo(t.q) }
