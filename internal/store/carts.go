package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/metrics"
	"github.com/safar/sportshop/internal/models"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lockCart returns the user's cart, creating it on first use, with its row
// locked for the rest of the transaction.
func lockCart(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		userID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	return cart, nil
}

func loadCartItems(ctx context.Context, q querier, cart *models.Cart) error {
	rows, err := q.QueryContext(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.added_at,
		        p.id, p.sku, p.name, p.description, p.category_id, p.price, p.discount_price,
		        p.stock_quantity, p.in_stock, p.is_active, p.created_at, p.updated_at, p.version
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.added_at, ci.id`,
		cart.ID)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		p := &item.Product
		err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.AddedAt,
			&p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID, &p.Price, &p.DiscountPrice,
			&p.StockQuantity, &p.InStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.Version,
		)
		if err != nil {
			return fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}

	return rows.Err()
}

// GetCart returns the user's cart with lines priced at the live product
// price. A user without a cart gets an empty one; nothing is written.
func GetCart(ctx context.Context, db *sql.DB, userID int64) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}

	err := db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM carts WHERE user_id = $1`,
		userID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if err := loadCartItems(ctx, db, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

func getActiveProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = $1 AND is_active`

	if err := scanProduct(tx.QueryRowContext(ctx, query, productID), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func saveCartLine(ctx context.Context, tx *sql.Tx, cartID int64, item *models.CartItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity, added_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		cartID, item.ProductID, item.Quantity)
	if err != nil {
		return fmt.Errorf("save cart line: %w", err)
	}
	return nil
}

func deleteCartLine(ctx context.Context, tx *sql.Tx, cartID, productID int64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

// mutateCart runs fn against the user's locked cart and reports the totals
// afterwards.
func mutateCart(ctx context.Context, db *sql.DB, op string, userID, productID int64, fn func(tx *sql.Tx, cart *models.Cart) error) (*models.CartSummary, error) {
	var summary models.CartSummary

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := loadCartItems(ctx, tx, cart); err != nil {
			return err
		}

		if err := fn(tx, cart); err != nil {
			return err
		}

		summary = cart.Summary(productID)
		return nil
	})

	metrics.CartMutations.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}

	return &summary, nil
}

// AddToCart merges quantity into the user's line for the product. The merged
// quantity may not exceed the product's stock.
func AddToCart(ctx context.Context, db *sql.DB, userID, productID int64, quantity int) (*models.CartSummary, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	return mutateCart(ctx, db, "add", userID, productID, func(tx *sql.Tx, cart *models.Cart) error {
		product, err := getActiveProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		line, err := cart.Add(product, quantity)
		if err != nil {
			return err
		}

		return saveCartLine(ctx, tx, cart.ID, line)
	})
}

// UpdateCartItem sets the quantity of an existing line; zero or less removes it.
func UpdateCartItem(ctx context.Context, db *sql.DB, userID, productID int64, quantity int) (*models.CartSummary, error) {
	return mutateCart(ctx, db, "update", userID, productID, func(tx *sql.Tx, cart *models.Cart) error {
		if quantity <= 0 {
			cart.Remove(productID)
			return deleteCartLine(ctx, tx, cart.ID, productID)
		}

		if _, ok := cart.Line(productID); !ok {
			return database.ErrCartItemNotFound
		}

		product, err := getActiveProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		line, err := cart.Update(product, quantity)
		if err != nil {
			return err
		}

		return saveCartLine(ctx, tx, cart.ID, line)
	})
}

// RemoveFromCart drops the product's line. Removing an absent line succeeds.
func RemoveFromCart(ctx context.Context, db *sql.DB, userID, productID int64) (*models.CartSummary, error) {
	return mutateCart(ctx, db, "remove", userID, productID, func(tx *sql.Tx, cart *models.Cart) error {
		cart.Remove(productID)
		return deleteCartLine(ctx, tx, cart.ID, productID)
	})
}

func ClearCart(ctx context.Context, db *sql.DB, userID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)`,
		userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
