package dto

import "github.com/shopspring/decimal"

type DevTokenRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

// Wallet

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"` // card / bank_transfer
}

type TransferRequest struct {
	ToAccountID string          `json:"to_account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note,omitempty"`
}

type AdjustWalletRequest struct {
	Amount decimal.Decimal `json:"amount"` // signed
	Reason string          `json:"reason"`
}

// Products

type CreateProductRequest struct {
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type UpdateProductRequest struct {
	Title    *string          `json:"title,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	IsActive *bool            `json:"is_active,omitempty"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// Orders

type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Items           []OrderItemRequest `json:"items"`
	ShippingAddress *string            `json:"shipping_address,omitempty"`
	Notes           *string            `json:"notes,omitempty"`
}

type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Disputes

type OpenDisputeRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type DisputeMessageRequest struct {
	Content string `json:"content"`
}

type ResolveDisputeRequest struct {
	RefundBuyer      bool             `json:"refund_buyer"`
	Amount           *decimal.Decimal `json:"amount,omitempty"` // если пусто, весь остаток эскроу
	Resolution       string           `json:"resolution"`
	ReleaseRemainder bool             `json:"release_remainder,omitempty"`
}

// Payouts

type PayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"` // bank_transfer / paypal / crypto
	Notes  string          `json:"notes,omitempty"`
}
