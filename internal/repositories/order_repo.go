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

type OrderRepo struct {
	db DBTX
}

func NewOrderRepo(db DBTX) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = `id, buyer_id, status, total_amount, shipping_address, tracking_number, notes, cancel_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(&o.ID, &o.BuyerID, &o.Status, &o.TotalAmount, &o.ShippingAddress, &o.TrackingNumber,
		&o.Notes, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	_, err := r.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, o.BuyerID, o.Status, o.TotalAmount, o.ShippingAddress, o.TrackingNumber, o.Notes, o.CancelReason, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.OrderID = o.ID
		_, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, seller_id, title, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, it.ID, it.OrderID, it.ProductID, it.SellerID, it.Title, it.Quantity, it.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepo) get(ctx context.Context, id uuid.UUID, lock bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFoundf("order %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.get(ctx, id, false)
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.get(ctx, id, true)
}

func (r *OrderRepo) loadItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, seller_id, title, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, product_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SellerID, &it.Title, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, patch OrderPatch) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $3,
			tracking_number = COALESCE($4, tracking_number),
			cancel_reason = COALESCE($5, cancel_reason),
			updated_at = $6
		WHERE id = $1 AND status = $2
	`, id, from, to, patch.TrackingNumber, patch.CancelReason, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s is no longer %s", models.ErrConcurrencyConflict, id, from)
	}
	return nil
}

func (r *OrderRepo) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	var where []string
	var args []any
	argN := 1

	if filter.BuyerID != nil {
		where = append(where, fmt.Sprintf("o.buyer_id = $%d", argN))
		args = append(args, *filter.BuyerID)
		argN++
	}
	if filter.SellerID != nil {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.seller_id = $%d)", argN))
		args = append(args, *filter.SellerID)
		argN++
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("o.status = $%d", argN))
		args = append(args, *filter.Status)
		argN++
	}

	query := `SELECT ` + prefixColumns("o", orderColumns) + ` FROM orders o`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY o.created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ptrs []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	orders := make([]models.Order, len(ptrs))
	for i, o := range ptrs {
		orders[i] = *o
	}
	return orders, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
