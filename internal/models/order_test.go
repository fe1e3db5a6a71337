package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/safar/sportshop/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusRefunded, true},
		{OrderStatusProcessing, OrderStatusRefunded, true},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusProcessing, false},
		{OrderStatusPending, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, status)

	_, err = ParseOrderStatus("lost")
	assert.ErrorIs(t, err, database.ErrInvalidStatus)
}

func TestOrderCancellable(t *testing.T) {
	for status, want := range map[OrderStatus]bool{
		OrderStatusPending:    true,
		OrderStatusProcessing: true,
		OrderStatusShipped:    false,
		OrderStatusDelivered:  false,
		OrderStatusCancelled:  false,
		OrderStatusRefunded:   false,
	} {
		o := &Order{Status: status}
		assert.Equal(t, want, o.Cancellable(), status)
	}
}

func TestDeliveryCost(t *testing.T) {
	cost, err := DeliveryCourier.Cost()
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300).Equal(cost))

	cost, err = DeliveryPickup.Cost()
	require.NoError(t, err)
	assert.True(t, cost.IsZero())

	_, err = DeliveryMethod("drone").Cost()
	assert.ErrorIs(t, err, database.ErrInvalidDeliveryMethod)
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	a := NewOrderNumber(now)
	b := NewOrderNumber(now)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20240309-[0-9A-F]{8}$`), a)
	assert.NotEqual(t, a, b)
}
