package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"go.uber.org/zap"
)

// InventoryReservation takes and returns stock with guarded single-statement writes.
type InventoryReservation struct {
	log *zap.Logger
}

func NewInventoryReservation(log *zap.Logger) *InventoryReservation {
	return &InventoryReservation{log: log}
}

// Reserve decrements stock by qty or fails with ErrInsufficientInventory.
func (r *InventoryReservation) Reserve(ctx context.Context, tx repositories.Tx, productID uuid.UUID, qty int) (*models.Reservation, error) {
	if qty <= 0 {
		return nil, models.Validationf("quantity must be positive")
	}
	p, err := tx.Products().Decrement(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	r.log.Debug("inventory reserved",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", qty),
		zap.Int("remaining", p.Quantity),
	)
	return &models.Reservation{
		ProductID: p.ID,
		SellerID:  p.SellerID,
		Title:     p.Title,
		Quantity:  qty,
		UnitPrice: p.Price,
		Remaining: p.Quantity,
	}, nil
}

// Release puts qty units back in stock.
func (r *InventoryReservation) Release(ctx context.Context, tx repositories.Tx, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return models.Validationf("quantity must be positive")
	}
	_, err := tx.Products().Increment(ctx, productID, qty)
	return err
}

// ReleaseItems restocks every line of an order.
func (r *InventoryReservation) ReleaseItems(ctx context.Context, tx repositories.Tx, items []models.OrderItem) error {
	for _, it := range items {
		if err := r.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}
