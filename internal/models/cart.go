package models

import (
	"math"
	"time"

	"github.com/safar/sportshop/internal/database"
	"github.com/shopspring/decimal"
)

type CartItem struct {
	ID        int64     `json:"id"`
	CartID    int64     `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Product   Product   `json:"product"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// Total prices the line at the product's current effective price.
func (i *CartItem) Total() decimal.Decimal {
	return i.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds at most one line per product.
type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Cart) Line(productID int64) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// Add merges quantity into the product's line, creating it if needed.
// The merged quantity may not exceed the product's stock.
func (c *Cart) Add(product *Product, quantity int) (*CartItem, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	line, ok := c.Line(product.ID)
	existing := 0
	if ok {
		existing = line.Quantity
	}

	if quantity > product.StockQuantity-existing {
		requested := quantity
		if quantity <= math.MaxInt-existing {
			requested += existing
		}
		return nil, database.NewOutOfStock(product.ID, product.Name, requested, product.StockQuantity)
	}

	if ok {
		line.Quantity += quantity
		line.Product = *product
		return line, nil
	}

	c.Items = append(c.Items, CartItem{
		CartID:    c.ID,
		ProductID: product.ID,
		Product:   *product,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	})
	return &c.Items[len(c.Items)-1], nil
}

// Update sets a line's quantity. A quantity of zero or less removes the line
// and returns a nil item.
func (c *Cart) Update(product *Product, quantity int) (*CartItem, error) {
	if quantity <= 0 {
		c.Remove(product.ID)
		return nil, nil
	}

	line, ok := c.Line(product.ID)
	if !ok {
		return nil, database.ErrCartItemNotFound
	}

	if quantity > product.StockQuantity {
		return nil, database.NewInsufficientStock(product.ID, product.Name, quantity, product.StockQuantity)
	}

	line.Quantity = quantity
	line.Product = *product
	return line, nil
}

// Remove drops the product's line. Removing an absent line is a no-op.
func (c *Cart) Remove(productID int64) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Items {
		total = total.Add(c.Items[i].Total())
	}
	return total
}

// CheckStock fails with a StockError naming the first line that cannot be
// ordered. A product withdrawn from sale counts as out of stock.
func (c *Cart) CheckStock() error {
	for _, item := range c.Items {
		if !item.Product.IsActive {
			return database.NewOutOfStock(item.ProductID, item.Product.Name, item.Quantity, 0)
		}
		if item.Quantity > item.Product.StockQuantity {
			return database.NewInsufficientStock(item.ProductID, item.Product.Name, item.Quantity, item.Product.StockQuantity)
		}
	}
	return nil
}

// Freeze snapshots every line into an order item at the current effective
// price and returns the items with their subtotal.
func (c *Cart) Freeze() ([]OrderItem, decimal.Decimal) {
	items := make([]OrderItem, 0, len(c.Items))
	subtotal := decimal.Zero

	for _, line := range c.Items {
		productID := line.ProductID
		price := line.Product.EffectivePrice()
		lineTotal := price.Mul(decimal.NewFromInt(int64(line.Quantity)))

		items = append(items, OrderItem{
			ProductID:   &productID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			Price:       price,
			Subtotal:    lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	return items, subtotal
}

// CartSummary is what every cart mutation reports back to the client.
type CartSummary struct {
	CartCount    int             `json:"cart_count"`
	ItemTotal    decimal.Decimal `json:"item_total"`
	CartSubtotal decimal.Decimal `json:"cart_subtotal"`
}

// Summary reports the cart totals and the total of the given product's line,
// which is zero when the line is absent.
func (c *Cart) Summary(productID int64) CartSummary {
	summary := CartSummary{
		CartCount:    c.TotalQuantity(),
		ItemTotal:    decimal.Zero,
		CartSubtotal: c.TotalPrice(),
	}
	if line, ok := c.Line(productID); ok {
		summary.ItemTotal = line.Total()
	}
	return summary
}
