package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s Store, qty int) uuid.UUID {
	t.Helper()
	p := &models.Product{SellerID: uuid.New(), Title: "widget", Price: decimal.NewFromInt(5), Quantity: qty, IsActive: true}
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Products().Create(ctx, p)
	}))
	return p.ID
}

func TestMemoryStoreRollsBackFailedUnit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Accounts().Ensure(ctx, accountID, models.RoleBuyer); err != nil {
			return err
		}
		if _, err := tx.Wallets().Apply(ctx, accountID, models.BucketBalance, decimal.NewFromInt(50)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Accounts().Get(ctx, accountID)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreApplyNeverGoesNegative(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Accounts().Ensure(ctx, accountID, models.RoleSeller); err != nil {
			return err
		}
		if _, err := tx.Wallets().Apply(ctx, accountID, models.BucketPending, decimal.NewFromInt(10)); err != nil {
			return err
		}
		_, err := tx.Wallets().Apply(ctx, accountID, models.BucketBalance, decimal.NewFromInt(-1))
		return err
	})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Accounts().Ensure(ctx, accountID, models.RoleSeller); err != nil {
			return err
		}
		w, err := tx.Wallets().Apply(ctx, accountID, models.BucketPending, decimal.NewFromInt(10))
		if err != nil {
			return err
		}
		assert.True(t, w.PendingBalance.Equal(decimal.NewFromInt(10)))
		assert.True(t, w.Balance.IsZero())
		return nil
	}))
}

func TestMemoryStoreDecrementIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	productID := seedProduct(t, s, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
				_, err := tx.Products().Decrement(ctx, productID, 1)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	ok, short := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrInsufficientInventory):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, short)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryPayoutMarkOnlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	p := &models.Payout{
		SellerID:    uuid.New(),
		Amount:      decimal.NewFromInt(30),
		Status:      models.PayoutStatusProcessing,
		Method:      "bank_transfer",
		ProcessedAt: &now,
	}

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Payouts().Create(ctx, p); err != nil {
			return err
		}
		changed, err := tx.Payouts().MarkCompleted(ctx, p.ID, "PAY-1", now)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = tx.Payouts().MarkFailed(ctx, p.ID, "late", now)
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := tx.Payouts().Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PayoutStatusCompleted, got.Status)
		return nil
	}))
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, page(items, 2, 2))
	assert.Nil(t, page(items, 2, 10))
	assert.Equal(t, items, page(items, 0, -1))
}

func TestMemoryAuditNegativeOffset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	entityID := uuid.New()

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.Audit().Log(ctx, models.AuditLog{Action: "wallet_deposit", EntityType: models.EntityWallet, EntityID: &entityID}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		logs, err := tx.Audit().GetByEntity(ctx, models.EntityWallet, entityID, 10, -1)
		require.NoError(t, err)
		assert.Len(t, logs, 3)

		logs, err = tx.Audit().GetByEntity(ctx, models.EntityWallet, entityID, 2, 2)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
		return nil
	}))
}
