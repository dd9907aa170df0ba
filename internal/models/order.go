package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusDisputed       = "disputed"
	OrderStatusRefunded       = "refunded"
)

// Valid state transitions: from -> []to
var ValidOrderTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusShipped, OrderStatusCancelled, OrderStatusDisputed, OrderStatusRefunded},
	OrderStatusShipped:        {OrderStatusDelivered, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusDelivered:      {OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusDisputed:       {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:      {},
	OrderStatusCancelled:      {},
	OrderStatusRefunded:       {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidOrderTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus reports whether no transition leaves the status.
func IsTerminalOrderStatus(status string) bool {
	allowed, ok := ValidOrderTransitions[status]
	return ok && len(allowed) == 0
}

const (
	MaxOrderLines   = 50
	MaxItemQuantity = 1000
)

type Order struct {
	ID              uuid.UUID       `json:"id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress *string         `json:"shipping_address,omitempty"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SellerID returns the seller of the first item. Orders are single-seller.
func (o *Order) SellerID() uuid.UUID {
	if len(o.Items) == 0 {
		return uuid.Nil
	}
	return o.Items[0].SellerID
}

func (o *Order) HasSeller(accountID uuid.UUID) bool {
	for _, it := range o.Items {
		if it.SellerID == accountID {
			return true
		}
	}
	return false
}

// SellerShares sums item subtotals per seller, in first-seen order.
func (o *Order) SellerShares() ([]uuid.UUID, map[uuid.UUID]decimal.Decimal) {
	var sellers []uuid.UUID
	shares := make(map[uuid.UUID]decimal.Decimal)
	for _, it := range o.Items {
		if _, ok := shares[it.SellerID]; !ok {
			sellers = append(sellers, it.SellerID)
			shares[it.SellerID] = decimal.Zero
		}
		shares[it.SellerID] = shares[it.SellerID].Add(it.Subtotal())
	}
	return sellers, shares
}

// OrderItem is a snapshot of the product at purchase time.
type OrderItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderFilter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	Status   *string
	Limit    int
	Offset   int
}
