package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/metrics"
	"github.com/safar/sportshop/internal/models"
)

const orderColumns = `id, user_id, order_number, status, delivery_method, delivery_cost, subtotal,
		total_amount, payment_method, payment_status, notes, tracking_number,
		created_at, updated_at, delivered_at, version`

type CheckoutRequest struct {
	UserID         int64
	DeliveryMethod models.DeliveryMethod
	PaymentMethod  string
	Notes          string
}

func scanOrder(row rowScanner, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.DeliveryMethod,
		&order.DeliveryCost,
		&order.Subtotal,
		&order.TotalAmount,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Notes,
		&order.TrackingNumber,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.DeliveredAt,
		&order.Version,
	)
}

// Checkout turns the user's cart into a pending order. Cart and product rows
// are locked for the whole transaction, so either every line is ordered and
// decremented and the cart emptied, or nothing changes.
func Checkout(ctx context.Context, db *sql.DB, req CheckoutRequest) (*models.Order, error) {
	deliveryCost, err := req.DeliveryMethod.Cost()
	if err != nil {
		return nil, err
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "card"
	}

	orderNumber := models.NewOrderNumber(time.Now())
	var order *models.Order

	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := lockCart(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := loadCartItems(ctx, tx, cart); err != nil {
			return err
		}
		if cart.IsEmpty() {
			return database.ErrEmptyCart
		}

		ids := make([]int64, 0, len(cart.Items))
		for _, item := range cart.Items {
			ids = append(ids, item.ProductID)
		}

		locked, err := LockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		for i := range cart.Items {
			product, ok := locked[cart.Items[i].ProductID]
			if !ok {
				return database.ErrProductNotFound
			}
			cart.Items[i].Product = *product
		}

		if err := cart.CheckStock(); err != nil {
			return err
		}

		items, subtotal := cart.Freeze()

		o := &models.Order{
			UserID:         req.UserID,
			OrderNumber:    orderNumber,
			Status:         models.OrderStatusPending,
			DeliveryMethod: req.DeliveryMethod,
			DeliveryCost:   deliveryCost,
			Subtotal:       subtotal,
			TotalAmount:    subtotal.Add(deliveryCost),
			PaymentMethod:  paymentMethod,
			PaymentStatus:  "pending",
			Notes:          req.Notes,
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, order_number, status, delivery_method, delivery_cost, subtotal,
			                     total_amount, payment_method, payment_status, notes, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW(), 1)
			 RETURNING id, created_at, updated_at, version`,
			o.UserID, o.OrderNumber, o.Status, o.DeliveryMethod, o.DeliveryCost, o.Subtotal,
			o.TotalAmount, o.PaymentMethod, o.PaymentStatus, o.Notes,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.Version)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for i := range items {
			item := &items[i]
			item.OrderID = o.ID

			err = tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity, price, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, NOW())
				 RETURNING id, created_at`,
				item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.Subtotal,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			if err := DecrementStock(ctx, tx, *item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, database.ErrInsufficientStock) {
					available := locked[*item.ProductID].StockQuantity
					return database.NewInsufficientStock(*item.ProductID, item.ProductName, item.Quantity, available)
				}
				return err
			}
		}
		o.Items = items

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		actorID := req.UserID
		if err := recordStatusChange(ctx, tx, o.ID, "", o.Status, &actorID); err != nil {
			return err
		}

		if err := EnqueueEvent(ctx, tx, models.EventOrderCreated, o.ID, orderCreatedEvent(o)); err != nil {
			return err
		}

		order = o
		return nil
	})

	metrics.Checkouts.WithLabelValues(checkoutResult(err)).Inc()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total_amount", order.TotalAmount.String(),
		"items", len(order.Items),
	)

	return order, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, database.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, database.ErrInsufficientStock), errors.Is(err, database.ErrOutOfStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}

func orderCreatedEvent(o *models.Order) models.OrderCreated {
	event := models.OrderCreated{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       make([]models.OrderCreatedItem, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		var productID int64
		if item.ProductID != nil {
			productID = *item.ProductID
		}
		event.Items = append(event.Items, models.OrderCreatedItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return event
}

func loadOrderItems(ctx context.Context, q querier, order *models.Order) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, price, subtotal, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		order.ID)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.Price,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	order.Items = items
	return nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1`

	if err := scanOrder(db.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := loadOrderItems(ctx, db, order); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderForUser returns the order if viewer owns it or has manager rights.
// Anyone else gets ErrOrderNotFound.
func GetOrderForUser(ctx context.Context, db *sql.DB, viewer access.Subject, id int64) (*models.Order, error) {
	order, err := GetOrder(ctx, db, id)
	if err != nil {
		return nil, err
	}

	if !access.CanViewOrder(viewer, order.UserID) {
		return nil, database.ErrOrderNotFound
	}

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	_, limit = normalizePage(1, limit)

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrders is the back-office listing, optionally filtered by status.
func ListOrders(ctx context.Context, db *sql.DB, actor access.Subject, status string, page, pageSize int) (*OffsetPage, error) {
	if err := access.RequireManager(actor); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)

	where := ``
	args := []any{}
	if status != "" {
		s, err := models.ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		args = append(args, s)
		where = `WHERE status = $1`
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, orderColumns, where, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}

// UpdateOrderStatus moves an order along the status workflow on behalf of a
// manager. Entering cancelled or refunded returns the items to stock.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, actor access.Subject, orderID int64, newStatus string) (*models.Order, error) {
	if err := access.RequireManager(actor); err != nil {
		return nil, err
	}

	next, err := models.ParseOrderStatus(newStatus)
	if err != nil {
		return nil, err
	}

	return transitionOrder(ctx, db, actor, orderID, next, nil)
}

// CancelOrder cancels an order for its owner or a manager while it is still
// cancellable.
func CancelOrder(ctx context.Context, db *sql.DB, actor access.Subject, orderID int64) (*models.Order, error) {
	return transitionOrder(ctx, db, actor, orderID, models.OrderStatusCancelled, func(o *models.Order) error {
		if !access.CanViewOrder(actor, o.UserID) {
			return database.ErrOrderNotFound
		}
		if !o.Cancellable() {
			return database.ErrNotCancellable
		}
		return nil
	})
}

func transitionOrder(ctx context.Context, db *sql.DB, actor access.Subject, orderID int64, next models.OrderStatus, check func(*models.Order) error) (*models.Order, error) {
	if actor == nil {
		return nil, database.ErrPermissionDenied
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		o := &models.Order{}
		query := `SELECT ` + orderColumns + `
			FROM orders
			WHERE id = $1
			FOR UPDATE`

		if err := scanOrder(tx.QueryRowContext(ctx, query, orderID), o); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if check != nil {
			if err := check(o); err != nil {
				return err
			}
		}

		if !o.Status.CanTransitionTo(next) {
			return &database.TransitionError{From: string(o.Status), To: string(next)}
		}

		previous = o.Status
		err := tx.QueryRowContext(ctx,
			`UPDATE orders
			 SET status = $1,
			     delivered_at = CASE WHEN $1 = 'delivered' THEN NOW() ELSE delivered_at END,
			     updated_at = NOW(),
			     version = version + 1
			 WHERE id = $2
			 RETURNING updated_at, delivered_at, version`,
			next, o.ID,
		).Scan(&o.UpdatedAt, &o.DeliveredAt, &o.Version)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		o.Status = next

		if err := loadOrderItems(ctx, tx, o); err != nil {
			return err
		}

		if next.Restocks() {
			if _, err := RestockItems(ctx, tx, o.Items); err != nil {
				return err
			}
		}

		actorID := actor.UserID()
		if err := recordStatusChange(ctx, tx, o.ID, previous, next, &actorID); err != nil {
			return err
		}

		event := models.OrderStatusChanged{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			OldStatus:   previous,
			NewStatus:   next,
			ActorID:     actorID,
		}
		if err := EnqueueEvent(ctx, tx, models.EventOrderStatusChanged, o.ID, event); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(previous), string(next)).Inc()
	slog.InfoContext(ctx, "order status changed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"old_status", previous,
		"new_status", next,
		"actor_id", actor.UserID(),
	)

	return order, nil
}

func recordStatusChange(ctx context.Context, tx *sql.Tx, orderID int64, from, to models.OrderStatus, actorID *int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, old_status, new_status, actor_id, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		orderID, from, to, actorID)
	if err != nil {
		return fmt.Errorf("record status change: %w", err)
	}
	return nil
}

// OrderHistory lists the status changes of an order, oldest first.
func OrderHistory(ctx context.Context, db *sql.DB, actor access.Subject, orderID int64) ([]models.StatusChange, error) {
	if err := access.RequireManager(actor); err != nil {
		return nil, err
	}

	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return nil, database.ErrOrderNotFound
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, old_status, new_status, actor_id, created_at
		 FROM order_status_history
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}
	defer rows.Close()

	history := []models.StatusChange{}
	for rows.Next() {
		var change models.StatusChange
		err := rows.Scan(&change.ID, &change.OrderID, &change.OldStatus, &change.NewStatus, &change.ActorID, &change.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return history, nil
}
