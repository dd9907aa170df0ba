package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/events"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxProductTitle = 200

type CreateProductInput struct {
	Title    string
	Price    decimal.Decimal
	Quantity int
}

// UpdateProductInput changes listing fields; nil leaves a field as is. Stock
// is not editable here, use Restock.
type UpdateProductInput struct {
	Title    *string
	Price    *decimal.Decimal
	IsActive *bool
}

type ProductService struct {
	store     repositories.Store
	inventory *InventoryReservation
	notifier  *Notifier
	log       *zap.Logger
}

func NewProductService(store repositories.Store, inventory *InventoryReservation, notifier *Notifier, log *zap.Logger) *ProductService {
	return &ProductService{store: store, inventory: inventory, notifier: notifier, log: log}
}

func (s *ProductService) CreateProduct(ctx context.Context, actor models.Actor, in CreateProductInput) (*models.Product, error) {
	if actor.Role != models.RoleSeller && !actor.IsAdmin() {
		return nil, models.Forbiddenf("only sellers can list products")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, models.Validationf("title is required")
	}
	if len(title) > maxProductTitle {
		return nil, models.Validationf("title cannot exceed %d characters", maxProductTitle)
	}
	if err := models.ValidateAmount("price", in.Price); err != nil {
		return nil, err
	}
	if in.Quantity < 0 {
		return nil, models.Validationf("quantity cannot be negative")
	}

	p := &models.Product{
		SellerID: actor.AccountID,
		Title:    title,
		Price:    in.Price,
		Quantity: in.Quantity,
		IsActive: true,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		if err := tx.Products().Create(ctx, p); err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "product_created", models.EntityProduct, p.ID, "%q at %s x%d", title, in.Price.StringFixed(2), in.Quantity)
	})
	if err != nil {
		logFailure(s.log, "create product failed", err)
		return nil, err
	}

	s.log.Info("product created", zap.String("product_id", p.ID.String()), zap.String("seller_id", p.SellerID.String()))
	return p, nil
}

// Restock adds units to a product the actor owns.
func (s *ProductService) Restock(ctx context.Context, actor models.Actor, productID uuid.UUID, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, models.Validationf("quantity must be positive")
	}
	if quantity > models.MaxItemQuantity {
		return nil, models.Validationf("quantity cannot exceed %d", models.MaxItemQuantity)
	}

	var product *models.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		p, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		if p.SellerID != actor.AccountID {
			return models.Forbiddenf("product %s belongs to another seller", p.ID)
		}
		if err := s.inventory.Release(ctx, tx, p.ID, quantity); err != nil {
			return err
		}
		product, err = tx.Products().Get(ctx, p.ID)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "product_restocked", models.EntityProduct, p.ID, "+%d, now %d", quantity, product.Quantity)
	})
	if err != nil {
		logFailure(s.log, "restock failed", err, zap.String("product_id", productID.String()))
		return nil, err
	}

	s.notifier.Notify(events.EventProductRestocked, []uuid.UUID{product.SellerID}, map[string]any{
		"product_id": product.ID.String(),
		"quantity":   product.Quantity,
	})
	return product, nil
}

// UpdateProduct is done by the product's seller or an admin.
func (s *ProductService) UpdateProduct(ctx context.Context, actor models.Actor, productID uuid.UUID, in UpdateProductInput) (*models.Product, error) {
	patch := repositories.ProductPatch{Price: in.Price, IsActive: in.IsActive}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, models.Validationf("title cannot be empty")
		}
		if len(title) > maxProductTitle {
			return nil, models.Validationf("title cannot exceed %d characters", maxProductTitle)
		}
		patch.Title = &title
	}
	if in.Price != nil {
		if err := models.ValidateAmount("price", *in.Price); err != nil {
			return nil, err
		}
	}
	if patch.Title == nil && patch.Price == nil && patch.IsActive == nil {
		return nil, models.Validationf("nothing to update")
	}
	return s.update(ctx, actor, productID, patch, "product_updated")
}

// Deactivate hides a product from new orders. Orders already placed are not affected.
func (s *ProductService) Deactivate(ctx context.Context, actor models.Actor, productID uuid.UUID) (*models.Product, error) {
	inactive := false
	return s.update(ctx, actor, productID, repositories.ProductPatch{IsActive: &inactive}, "product_deactivated")
}

func (s *ProductService) update(ctx context.Context, actor models.Actor, productID uuid.UUID, patch repositories.ProductPatch, action string) (*models.Product, error) {
	var product *models.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		p, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		if p.SellerID != actor.AccountID && !actor.IsAdmin() {
			return models.Forbiddenf("product %s belongs to another seller", p.ID)
		}
		product, err = tx.Products().Update(ctx, p.ID, patch)
		if err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, action, models.EntityProduct, p.ID,
			"%q at %s, active=%t", product.Title, product.Price.StringFixed(2), product.IsActive)
	})
	if err != nil {
		logFailure(s.log, "update product failed", err, zap.String("product_id", productID.String()))
		return nil, err
	}

	s.log.Info("product updated", zap.String("product_id", product.ID.String()), zap.String("action", action))
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var p *models.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		p, err = tx.Products().Get(ctx, productID)
		return err
	})
	return p, err
}
