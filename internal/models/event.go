package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

const (
	OutboxPending   = "pending"
	OutboxPublished = "published"
)

type OutboxEvent struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID int64           `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

type OrderCreated struct {
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	UserID      int64              `json:"user_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderCreatedItem `json:"items"`
}

type OrderCreatedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderStatusChanged struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OldStatus   OrderStatus `json:"old_status"`
	NewStatus   OrderStatus `json:"new_status"`
	ActorID     int64       `json:"actor_id"`
}
