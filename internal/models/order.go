package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/sportshop/internal/database"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", database.ErrInvalidStatus, s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Restocks reports whether entering this status returns the items to stock.
func (s OrderStatus) Restocks() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "pickup"
	DeliveryCourier DeliveryMethod = "courier"
	DeliveryPost    DeliveryMethod = "post"
	DeliveryCarrier DeliveryMethod = "carrier"
)

var deliveryCosts = map[DeliveryMethod]decimal.Decimal{
	DeliveryPickup:  decimal.Zero,
	DeliveryCourier: decimal.NewFromInt(300),
	DeliveryPost:    decimal.NewFromInt(250),
	DeliveryCarrier: decimal.NewFromInt(350),
}

func (m DeliveryMethod) Cost() (decimal.Decimal, error) {
	cost, ok := deliveryCosts[m]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", database.ErrInvalidDeliveryMethod, m)
	}
	return cost, nil
}

type Order struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	OrderNumber    string          `json:"order_number"`
	Status         OrderStatus     `json:"status"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method"`
	DeliveryCost   decimal.Decimal `json:"delivery_cost"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentStatus  string          `json:"payment_status"`
	Notes          string          `json:"notes,omitempty"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	Version        int             `json:"version"`
	Items          []OrderItem     `json:"items,omitempty"`
}

// Cancellable holds while the order has not left the warehouse.
func (o *Order) Cancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// OrderItem is a snapshot of a cart line. ProductID is nil once the product is deleted.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   *int64          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

type StatusChange struct {
	ID        int64       `json:"id"`
	OrderID   int64       `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
	ActorID   *int64      `json:"actor_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewOrderNumber returns an identifier of the form ORD-20240131-1A2B3C4D.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
