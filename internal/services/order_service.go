package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/events"
	"github.com/ledger-market/backend/internal/metrics"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type PlaceOrderInput struct {
	Items           []OrderLine
	ShippingAddress *string
	Notes           *string
}

// OrderService drives orders through the status table. Every transition and
// its money and inventory side effects commit together.
type OrderService struct {
	store     repositories.Store
	inventory *InventoryReservation
	wallets   *WalletLedger
	escrow    *EscrowLedger
	refunds   *RefundEngine
	notifier  *Notifier
	log       *zap.Logger
}

func NewOrderService(
	store repositories.Store,
	inventory *InventoryReservation,
	wallets *WalletLedger,
	escrow *EscrowLedger,
	refunds *RefundEngine,
	notifier *Notifier,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		store:     store,
		inventory: inventory,
		wallets:   wallets,
		escrow:    escrow,
		refunds:   refunds,
		notifier:  notifier,
		log:       log,
	}
}

// transitionOrder writes a status change allowed by the table. Side effects
// belong to the caller and share its transaction.
func transitionOrder(ctx context.Context, tx repositories.Tx, order *models.Order, to string, patch repositories.OrderPatch) error {
	if err := checkTransition(order, to); err != nil {
		return err
	}
	if err := tx.Orders().UpdateStatus(ctx, order.ID, order.Status, to, patch); err != nil {
		return err
	}
	order.Status = to
	if patch.TrackingNumber != nil {
		order.TrackingNumber = patch.TrackingNumber
	}
	if patch.CancelReason != nil {
		order.CancelReason = patch.CancelReason
	}
	return nil
}

func checkTransition(order *models.Order, to string) error {
	if !models.IsValidTransition(order.Status, to) {
		return &models.TransitionError{Entity: "order", From: order.Status, To: to}
	}
	return nil
}

func normalizeLines(lines []OrderLine) ([]OrderLine, error) {
	if len(lines) == 0 {
		return nil, models.Validationf("order must contain at least one item")
	}
	if len(lines) > models.MaxOrderLines {
		return nil, models.Validationf("order cannot contain more than %d items", models.MaxOrderLines)
	}

	merged := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if l.ProductID == uuid.Nil {
			return nil, models.Validationf("product_id is required")
		}
		if l.Quantity <= 0 {
			return nil, models.Validationf("quantity must be positive")
		}
		merged[l.ProductID] += l.Quantity
		if merged[l.ProductID] > models.MaxItemQuantity {
			return nil, models.Validationf("quantity per product cannot exceed %d", models.MaxItemQuantity)
		}
	}

	out := make([]OrderLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, OrderLine{ProductID: id, Quantity: qty})
	}
	// Fixed lock order across concurrent orders.
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0 })
	return out, nil
}

// PlaceOrder reserves stock, debits the buyer and holds escrow. The order is
// only persisted if all of it succeeds, and it is returned as paid.
func (s *OrderService) PlaceOrder(ctx context.Context, actor models.Actor, in PlaceOrderInput) (*models.Order, error) {
	lines, err := normalizeLines(in.Items)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	var purchase *models.WalletTransaction
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}

		o := &models.Order{
			ID:              uuid.New(),
			BuyerID:         actor.AccountID,
			Status:          models.OrderStatusPendingPayment,
			ShippingAddress: in.ShippingAddress,
			Notes:           in.Notes,
		}
		total := decimal.Zero
		for _, l := range lines {
			p, err := tx.Products().Get(ctx, l.ProductID)
			if err != nil {
				return err
			}
			if p.SellerID == actor.AccountID {
				return models.Validationf("cannot buy your own product %q", p.Title)
			}
			if len(o.Items) > 0 && o.Items[0].SellerID != p.SellerID {
				return models.Validationf("all items in an order must be from the same seller")
			}
			res, err := s.inventory.Reserve(ctx, tx, p.ID, l.Quantity)
			if err != nil {
				return err
			}
			item := models.OrderItem{
				ProductID: res.ProductID,
				SellerID:  res.SellerID,
				Title:     res.Title,
				Quantity:  res.Quantity,
				UnitPrice: res.UnitPrice,
			}
			o.Items = append(o.Items, item)
			total = total.Add(item.Subtotal())
		}
		if !total.IsPositive() {
			return models.Validationf("order total must be positive")
		}
		o.TotalAmount = total

		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		var err error
		purchase, err = s.wallets.Debit(ctx, tx, actor.AccountID, total, Entry{
			Type:          models.TxTypePurchase,
			ReferenceID:   refTo(o.ID),
			ReferenceType: models.RefOrder,
			Description:   fmt.Sprintf("purchase, order %s", o.ID),
		})
		if err != nil {
			return err
		}
		if _, err := s.escrow.Hold(ctx, tx, o); err != nil {
			return err
		}
		if err := transitionOrder(ctx, tx, o, models.OrderStatusPaid, repositories.OrderPatch{}); err != nil {
			return err
		}
		order = o
		return writeAudit(ctx, tx, actor, "order_placed", models.EntityOrder, o.ID,
			"order of %d line(s) paid, total %s held in escrow", len(o.Items), total.StringFixed(2))
	})
	if err != nil {
		logFailure(s.log, "place order failed", err, zap.String("buyer_id", actor.AccountID.String()))
		return nil, err
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	metrics.OrdersTotal.WithLabelValues(order.Status).Inc()
	observeTransactions(purchase)
	s.notifyOrder(events.EventOrderPaid, order)
	return order, nil
}

// mutate loads the order under lock and runs fn in one atomic unit.
func (s *OrderService) mutate(ctx context.Context, actor models.Actor, orderID uuid.UUID, fn func(ctx context.Context, tx repositories.Tx, o *models.Order) error) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := ensureActor(ctx, tx, actor); err != nil {
			return err
		}
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

// Ship is done by the order's seller or an admin.
func (s *OrderService) Ship(ctx context.Context, actor models.Actor, orderID uuid.UUID, trackingNumber string) (*models.Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, models.Validationf("tracking_number is required")
	}

	order, err := s.mutate(ctx, actor, orderID, func(ctx context.Context, tx repositories.Tx, o *models.Order) error {
		if !actor.IsAdmin() && !o.HasSeller(actor.AccountID) {
			return models.Forbiddenf("only the seller can ship order %s", o.ID)
		}
		if err := transitionOrder(ctx, tx, o, models.OrderStatusShipped, repositories.OrderPatch{TrackingNumber: &trackingNumber}); err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "order_shipped", models.EntityOrder, o.ID, "tracking number %s", trackingNumber)
	})
	return s.finish(order, err, "ship order", orderID, events.EventOrderShipped, nil)
}

// ConfirmDelivery is done by the buyer.
func (s *OrderService) ConfirmDelivery(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.mutate(ctx, actor, orderID, func(ctx context.Context, tx repositories.Tx, o *models.Order) error {
		if o.BuyerID != actor.AccountID {
			return models.Forbiddenf("only the buyer can confirm delivery of order %s", o.ID)
		}
		if err := transitionOrder(ctx, tx, o, models.OrderStatusDelivered, repositories.OrderPatch{}); err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "order_delivered", models.EntityOrder, o.ID, "delivery confirmed by buyer")
	})
	return s.finish(order, err, "confirm delivery", orderID, events.EventOrderDelivered, nil)
}

// Complete is done by the buyer once delivered and releases escrow to the seller.
func (s *OrderService) Complete(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	var released []*models.WalletTransaction
	order, err := s.mutate(ctx, actor, orderID, func(ctx context.Context, tx repositories.Tx, o *models.Order) error {
		if o.BuyerID != actor.AccountID {
			return models.Forbiddenf("only the buyer can complete order %s", o.ID)
		}
		// Disputed orders are completed by dispute resolution only.
		if o.Status == models.OrderStatusDisputed {
			return &models.TransitionError{Entity: "order", From: o.Status, To: models.OrderStatusCompleted}
		}
		if err := checkTransition(o, models.OrderStatusCompleted); err != nil {
			return err
		}
		e, txs, err := s.escrow.Release(ctx, tx, o)
		if err != nil {
			return err
		}
		released = txs
		if err := transitionOrder(ctx, tx, o, models.OrderStatusCompleted, repositories.OrderPatch{}); err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "order_completed", models.EntityOrder, o.ID,
			"escrow %s released to seller", e.Remaining().StringFixed(2))
	})
	return s.finish(order, err, "complete order", orderID, events.EventOrderCompleted, nil, released...)
}

// Cancel is allowed to the buyer, the seller or an admin before delivery.
// Whatever is left in escrow goes back to the buyer and stock is restored.
func (s *OrderService) Cancel(ctx context.Context, actor models.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	var refund *models.Refund
	var credit *models.WalletTransaction
	order, err := s.mutate(ctx, actor, orderID, func(ctx context.Context, tx repositories.Tx, o *models.Order) error {
		if !actor.IsAdmin() && o.BuyerID != actor.AccountID && !o.HasSeller(actor.AccountID) {
			return models.Forbiddenf("not a party to order %s", o.ID)
		}
		if err := checkTransition(o, models.OrderStatusCancelled); err != nil {
			return err
		}
		var err error
		refund, credit, err = s.refundRemaining(ctx, tx, o, "order cancelled", actor)
		if err != nil {
			return err
		}
		if err := s.inventory.ReleaseItems(ctx, tx, o.Items); err != nil {
			return err
		}
		var patch repositories.OrderPatch
		if reason != "" {
			patch.CancelReason = &reason
		}
		if err := transitionOrder(ctx, tx, o, models.OrderStatusCancelled, patch); err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "order_cancelled", models.EntityOrder, o.ID, "cancelled by %s: %s", actor.Role, reason)
	})
	return s.finish(order, err, "cancel order", orderID, events.EventOrderCancelled, refund, credit)
}

// AdminRefund refunds a paid order in full and restocks it.
func (s *OrderService) AdminRefund(ctx context.Context, actor models.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, models.Forbiddenf("only admins can refund orders")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.Validationf("reason is required")
	}

	var refund *models.Refund
	var credit *models.WalletTransaction
	order, err := s.mutate(ctx, actor, orderID, func(ctx context.Context, tx repositories.Tx, o *models.Order) error {
		if o.Status != models.OrderStatusPaid {
			return &models.TransitionError{Entity: "order", From: o.Status, To: models.OrderStatusRefunded}
		}
		var err error
		refund, credit, err = s.refundRemaining(ctx, tx, o, reason, actor)
		if err != nil {
			return err
		}
		if err := s.inventory.ReleaseItems(ctx, tx, o.Items); err != nil {
			return err
		}
		if err := transitionOrder(ctx, tx, o, models.OrderStatusRefunded, repositories.OrderPatch{}); err != nil {
			return err
		}
		return writeAudit(ctx, tx, actor, "order_refunded", models.EntityOrder, o.ID, "refunded by admin: %s", reason)
	})
	return s.finish(order, err, "admin refund", orderID, events.EventOrderRefunded, refund, credit)
}

// refundRemaining returns whatever is still in escrow to the buyer. An escrow
// that is already empty needs nothing.
func (s *OrderService) refundRemaining(ctx context.Context, tx repositories.Tx, o *models.Order, reason string, actor models.Actor) (*models.Refund, *models.WalletTransaction, error) {
	e, err := tx.Escrows().GetByOrderForUpdate(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	if !e.IsOpen() {
		return nil, nil, nil
	}
	return s.refunds.Issue(ctx, tx, o, nil, reason, actor)
}

func (s *OrderService) finish(order *models.Order, err error, op string, orderID uuid.UUID, event string, refund *models.Refund, moved ...*models.WalletTransaction) (*models.Order, error) {
	if err != nil {
		logFailure(s.log, op+" failed", err, zap.String("order_id", orderID.String()))
		return nil, err
	}
	s.log.Info(op, zap.String("order_id", order.ID.String()), zap.String("status", order.Status))
	metrics.OrdersTotal.WithLabelValues(order.Status).Inc()
	if refund != nil {
		metrics.RefundsTotal.WithLabelValues(refund.Type).Inc()
	}
	observeTransactions(moved...)
	s.notifyOrder(event, order)
	return order, nil
}

func (s *OrderService) notifyOrder(event string, order *models.Order) {
	s.notifier.Notify(event, []uuid.UUID{order.BuyerID, order.SellerID()}, map[string]any{
		"order_id": order.ID.String(),
		"status":   order.Status,
		"total":    order.TotalAmount.StringFixed(2),
	})
}

// GetOrder returns an order to its buyer, its seller or an admin.
func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := canView(actor, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

// GetEscrow returns the escrow of an order to its parties.
func (s *OrderService) GetEscrow(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := canView(actor, o); err != nil {
			return err
		}
		escrow, err = tx.Escrows().GetByOrder(ctx, orderID)
		return err
	})
	return escrow, err
}

// ListOrders lists the actor's purchases, or sales when asSeller is set.
// Admins see every order.
func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor, asSeller bool, status *string, limit, offset int) ([]models.Order, error) {
	filter := models.OrderFilter{Status: status, Limit: limit, Offset: offset}
	switch {
	case asSeller:
		filter.SellerID = &actor.AccountID
	case !actor.IsAdmin():
		filter.BuyerID = &actor.AccountID
	}

	var orders []models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		orders, err = tx.Orders().List(ctx, filter)
		return err
	})
	return orders, err
}
