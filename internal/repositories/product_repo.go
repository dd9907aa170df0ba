package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-market/backend/internal/models"
)

type ProductRepo struct {
	db DBTX
}

func NewProductRepo(db DBTX) *ProductRepo {
	return &ProductRepo{db: db}
}

const productColumns = `id, seller_id, title, price, quantity, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Price, &p.Quantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Create(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.SellerID, p.Title, p.Price, p.Quantity, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProductRepo) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("product %s", id)
	}
	return p, err
}

func (r *ProductRepo) Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `
		UPDATE products SET
			title = COALESCE($2::text, title),
			price = COALESCE($3::numeric, price),
			is_active = COALESCE($4::boolean, is_active),
			updated_at = $5
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Title, patch.Price, patch.IsActive, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("product %s", id)
	}
	return p, err
}

func (r *ProductRepo) Decrement(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at = $3
		WHERE id = $1 AND is_active AND quantity >= $2
		RETURNING `+productColumns,
		id, qty, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if !current.IsActive {
			return nil, models.Validationf("product %q is no longer available", current.Title)
		}
		return nil, fmt.Errorf("%w: %d unit(s) of %q requested, %d available",
			models.ErrInsufficientInventory, qty, current.Title, current.Quantity)
	}
	return p, err
}

func (r *ProductRepo) Increment(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at = $3
		WHERE id = $1
		RETURNING `+productColumns,
		id, qty, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("product %s", id)
	}
	return p, err
}
