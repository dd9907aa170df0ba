package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{OrderStatusPendingPayment, OrderStatusPaid, true},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusCompleted, true},

		// Cancellation and refund paths
		{OrderStatusPendingPayment, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusRefunded, true},

		// Disputes
		{OrderStatusPaid, OrderStatusDisputed, true},
		{OrderStatusShipped, OrderStatusDisputed, true},
		{OrderStatusDelivered, OrderStatusDisputed, true},
		{OrderStatusDisputed, OrderStatusCompleted, true},
		{OrderStatusDisputed, OrderStatusRefunded, true},

		// Invalid transitions
		{OrderStatusPendingPayment, OrderStatusShipped, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDisputed, OrderStatusCancelled, false},
		{OrderStatusDisputed, OrderStatusShipped, false},
		{OrderStatusCompleted, OrderStatusRefunded, false},
		{OrderStatusRefunded, OrderStatusCompleted, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusShipped, OrderStatusPaid, false},
		{"nonexistent", OrderStatusPaid, false},
		{OrderStatusPaid, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	statuses := []string{
		OrderStatusPendingPayment, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusDisputed, OrderStatusRefunded,
	}
	for _, s := range statuses {
		_, ok := ValidOrderTransitions[s]
		assert.True(t, ok, "status %q has no entry in ValidOrderTransitions", s)
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, s := range []string{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded} {
		assert.True(t, IsTerminalOrderStatus(s), s)
	}
	assert.False(t, IsTerminalOrderStatus(OrderStatusDisputed))
	assert.False(t, IsTerminalOrderStatus("nonexistent"))
}

func TestSellerShares(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	o := Order{Items: []OrderItem{
		{SellerID: a, Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		{SellerID: b, Quantity: 1, UnitPrice: decimal.RequireFromString("5")},
		{SellerID: a, Quantity: 1, UnitPrice: decimal.RequireFromString("1.25")},
	}}

	sellers, shares := o.SellerShares()
	require.Equal(t, []uuid.UUID{a, b}, sellers)
	assert.True(t, shares[a].Equal(decimal.RequireFromString("22.25")))
	assert.True(t, shares[b].Equal(decimal.RequireFromString("5")))
	assert.Equal(t, a, o.SellerID())
	assert.True(t, o.HasSeller(b))
	assert.False(t, o.HasSeller(uuid.New()))
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"10", false},
		{"0.01", false},
		{"19.990", false},
		{"0", true},
		{"-5", true},
		{"1.001", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidateAmount("amount", decimal.RequireFromString(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEscrowRemaining(t *testing.T) {
	e := Escrow{Amount: decimal.NewFromInt(80), TotalRefunded: decimal.NewFromInt(50), Status: EscrowStatusPartialRefunded}
	assert.True(t, e.Remaining().Equal(decimal.NewFromInt(30)))
	assert.True(t, e.IsOpen())

	e.TotalRefunded = decimal.NewFromInt(80)
	assert.False(t, e.IsOpen())
}

func TestTransitionErrorUnwraps(t *testing.T) {
	err := error(&TransitionError{Entity: "order", From: OrderStatusCompleted, To: OrderStatusPaid})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "completed to paid")
}
