package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID            int64               `json:"id"`
	SKU           string              `json:"sku"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	CategoryID    *int64              `json:"category_id,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	StockQuantity int                 `json:"stock_quantity"`
	InStock       bool                `json:"in_stock"`
	IsActive      bool                `json:"is_active"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
}

// EffectivePrice is the discount price when one is set, otherwise the list price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// ValidatePricing checks a list price and an optional discount against each other.
func ValidatePricing(price decimal.Decimal, discount decimal.NullDecimal) bool {
	if price.IsNegative() {
		return false
	}
	if !discount.Valid {
		return true
	}
	return !discount.Decimal.IsNegative() && discount.Decimal.LessThan(price)
}

type Review struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	ProductID   int64     `json:"product_id"`
	UserID      int64     `json:"user_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
