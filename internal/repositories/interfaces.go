package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Store opens atomic units. Everything fn does through tx commits together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Accounts() AccountRepository
	Wallets() WalletRepository
	Products() ProductRepository
	Orders() OrderRepository
	Escrows() EscrowRepository
	Refunds() RefundRepository
	Disputes() DisputeRepository
	Payouts() PayoutRepository
	Audit() AuditRepository
}

type AccountRepository interface {
	// Ensure creates the account and its zero wallet if they do not exist yet.
	Ensure(ctx context.Context, id uuid.UUID, role string) (*models.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type WalletRepository interface {
	GetByAccount(ctx context.Context, accountID uuid.UUID) (*models.Wallet, error)
	// Lock takes row locks on the given wallets in account id order.
	Lock(ctx context.Context, accountIDs ...uuid.UUID) error
	// Apply adds delta to one bucket. It fails with ErrInsufficientFunds instead of going below zero.
	Apply(ctx context.Context, accountID uuid.UUID, bucket string, delta decimal.Decimal) (*models.Wallet, error)
	AppendTransaction(ctx context.Context, t *models.WalletTransaction) error
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error)
}

// ProductPatch carries the listing fields an owner may change. Stock moves only
// through Decrement and Increment.
type ProductPatch struct {
	Title    *string
	Price    *decimal.Decimal
	IsActive *bool
}

type ProductRepository interface {
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error)
	// Decrement removes qty units only if that many are in stock.
	Decrement(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error)
	Increment(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error)
}

// OrderPatch carries optional columns written together with a status change.
type OrderPatch struct {
	TrackingNumber *string
	CancelReason   *string
}

type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateStatus moves the order from one status to another. ErrConcurrencyConflict if it was not in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, patch OrderPatch) error
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}

type EscrowRepository interface {
	Create(ctx context.Context, e *models.Escrow) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
	GetByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
	Update(ctx context.Context, e *models.Escrow) error
}

type RefundRepository interface {
	Create(ctx context.Context, r *models.Refund) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
}

type DisputeFilter struct {
	PartyID *uuid.UUID
	Status  *string
	Limit   int
	Offset  int
}

type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Update(ctx context.Context, d *models.Dispute) error
	AddMessage(ctx context.Context, m *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error)
	List(ctx context.Context, filter DisputeFilter) ([]models.Dispute, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, p *models.Payout) error
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Claim(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error)
	// MarkCompleted and MarkFailed only touch payouts still processing and report whether they did.
	MarkCompleted(ctx context.Context, id uuid.UUID, reference string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	ListDue(ctx context.Context, processedBefore time.Time, limit int) ([]models.Payout, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]models.Payout, error)
}

type AuditRepository interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
