package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, category_id, price, discount_price,
		stock_quantity, in_stock, is_active, created_at, updated_at, version`

type NewProduct struct {
	SKU           string
	Name          string
	Description   string
	CategoryID    *int64
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Stock         int
}

// ProductFilter narrows a catalog listing. Price bounds apply to the
// effective price. Unknown Sort values fall back to newest first.
type ProductFilter struct {
	CategoryID  *int64
	InStockOnly bool
	Query       string
	MinPrice    decimal.NullDecimal
	MaxPrice    decimal.NullDecimal
	HasDiscount bool
	Sort        string
}

const effectivePrice = `COALESCE(discount_price, price)`

var productSorts = map[string]string{
	"newest": "created_at DESC, id DESC",
	"price":  effectivePrice + " ASC, id",
	"-price": effectivePrice + " DESC, id DESC",
	"name":   "name ASC, id",
	"-name":  "name DESC, id DESC",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.CategoryID,
		&product.Price,
		&product.DiscountPrice,
		&product.StockQuantity,
		&product.InStock,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, db *sql.DB, p NewProduct) (*models.Product, error) {
	if !models.ValidatePricing(p.Price, p.DiscountPrice) {
		return nil, database.ErrInvalidPrice
	}
	if p.Stock < 0 {
		return nil, database.ErrInvalidQuantity
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, category_id, price, discount_price, stock_quantity, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	row := db.QueryRowContext(ctx, query, p.SKU, p.Name, p.Description, p.CategoryID, p.Price, p.DiscountPrice, p.Stock)
	if err := scanProduct(row, product); err != nil {
		if database.IsUniqueViolation(err, "products_sku_key") {
			return nil, database.ErrSKUTaken
		}
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = $1`

	if err := scanProduct(db.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// lockProductNoWait locks a single product row, failing with ErrLockTimeout
// instead of queueing behind a checkout that holds it.
func lockProductNoWait(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
		FOR UPDATE NOWAIT`

	if err := scanProduct(tx.QueryRowContext(ctx, query, productID), product); err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product (nowait): %w", err)
	}

	return product, nil
}

// LockProducts takes row locks on the given products in ascending id order
// so that concurrent checkouts over overlapping carts cannot deadlock.
func LockProducts(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(sorted))
	for rows.Next() {
		product := &models.Product{}
		if err := scanProduct(rows, product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func UpdateStockOptimistic(ctx context.Context, db *sql.DB, productID int64, newStock int, version int) error {
	if newStock < 0 {
		return database.ErrInvalidQuantity
	}

	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newStock, productID, version)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// SetStock overwrites the stock level. It does not wait for a checkout that
// is holding the product; the caller gets ErrLockTimeout and may retry.
func SetStock(ctx context.Context, db *sql.DB, productID int64, quantity int) (*models.Product, error) {
	if quantity < 0 {
		return nil, database.ErrInvalidQuantity
	}

	product := &models.Product{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := lockProductNoWait(ctx, tx, productID); err != nil {
			return err
		}

		query := `
			UPDATE products
			SET stock_quantity = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2
			RETURNING ` + productColumns

		if err := scanProduct(tx.QueryRowContext(ctx, query, quantity, productID), product); err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

// SetProductActive withdraws a product from sale or puts it back. Inactive
// products disappear from listings and cannot be added or checked out.
func SetProductActive(ctx context.Context, db *sql.DB, productID int64, active bool) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET is_active = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + productColumns

	if err := scanProduct(db.QueryRowContext(ctx, query, active, productID), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("set product active: %w", err)
	}

	return product, nil
}

// UpdateProductPrice changes the live price. Existing order items keep the
// price they were sold at.
func UpdateProductPrice(ctx context.Context, db *sql.DB, productID int64, price decimal.Decimal, discount decimal.NullDecimal) (*models.Product, error) {
	if !models.ValidatePricing(price, discount) {
		return nil, database.ErrInvalidPrice
	}

	product := &models.Product{}

	query := `
		UPDATE products
		SET price = $1, discount_price = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3
		RETURNING ` + productColumns

	if err := scanProduct(db.QueryRowContext(ctx, query, price, discount, productID), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update price: %w", err)
	}

	return product, nil
}

// DeleteProduct removes the product. Cart lines go with it; order items keep
// their snapshot and lose the reference.
func DeleteProduct(ctx context.Context, db *sql.DB, productID int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// RestockItems returns order items to stock in ascending product id order,
// the same order checkout locks in. Items whose product was deleted are
// skipped. It returns the ids of the products that were updated.
func RestockItems(ctx context.Context, tx *sql.Tx, items []models.OrderItem) ([]int64, error) {
	var restocked []int64

	for _, item := range sortedByProduct(items) {
		result, err := tx.ExecContext(ctx,
			`UPDATE products
			 SET stock_quantity = stock_quantity + $1,
			     updated_at = NOW()
			 WHERE id = $2`,
			item.Quantity, *item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("restock product %d: %w", *item.ProductID, err)
		}

		if n, err := result.RowsAffected(); err == nil && n > 0 {
			restocked = append(restocked, *item.ProductID)
		}
	}

	return restocked, nil
}

func sortedByProduct(items []models.OrderItem) []models.OrderItem {
	sorted := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			sorted = append(sorted, item)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return *sorted[i].ProductID < *sorted[j].ProductID })
	return sorted
}

func ListProducts(ctx context.Context, db *sql.DB, filter ProductFilter, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	conds := []string{`is_active`}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CategoryID != nil {
		conds = append(conds, `category_id = `+arg(*filter.CategoryID))
	}
	if filter.InStockOnly {
		conds = append(conds, `in_stock`)
	}
	if filter.HasDiscount {
		conds = append(conds, `discount_price IS NOT NULL`)
	}
	if filter.MinPrice.Valid {
		conds = append(conds, effectivePrice+` >= `+arg(filter.MinPrice.Decimal))
	}
	if filter.MaxPrice.Valid {
		conds = append(conds, effectivePrice+` <= `+arg(filter.MaxPrice.Decimal))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + likeEscaper.Replace(q) + "%")
		conds = append(conds, fmt.Sprintf(`(name ILIKE %[1]s OR description ILIKE %[1]s
			OR EXISTS (SELECT 1 FROM categories c WHERE c.id = products.category_id AND c.name ILIKE %[1]s))`, p))
	}

	where := `WHERE ` + strings.Join(conds, ` AND `)

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	orderBy, ok := productSorts[filter.Sort]
	if !ok {
		orderBy = productSorts["newest"]
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`SELECT %s
		FROM products
		%s
		ORDER BY %s
		LIMIT %s OFFSET %s`, productColumns, where, orderBy, arg(pageSize), arg(offset))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}
