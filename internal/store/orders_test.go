package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
	"github.com/safar/sportshop/internal/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user := createUser(t, db, access.RoleCustomer)
	p1 := createProduct(t, db, "Ball", 100, 5)

	_, err := store.AddToCart(ctx, db, user.ID, p1.ID, 2)
	require.NoError(t, err)

	order, err := store.Checkout(ctx, db, store.CheckoutRequest{
		UserID:         user.ID,
		DeliveryMethod: models.DeliveryPickup,
		Notes:          "leave at the door",
	})
	require.NoError(t, err)

	assert.NotZero(t, order.ID)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, decimal.NewFromInt(200).Equal(order.Subtotal))
	assert.True(t, decimal.NewFromInt(200).Equal(order.TotalAmount))
	require.Len(t, order.Items, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(order.Items[0].Price))

	assert.Equal(t, 3, stockOf(t, db, p1.ID))

	cart, err := store.GetCart(ctx, db, user.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	_, err = store.AddToCart(ctx, db, user.ID, p1.ID, 1)
	require.NoError(t, err)
	second, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: models.DeliveryCourier})
	require.NoError(t, err)
	assert.NotEqual(t, order.OrderNumber, second.OrderNumber)
	assert.True(t, decimal.NewFromInt(400).Equal(second.TotalAmount), "100 + courier 300")

	pending, err := store.CountPendingEvents(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestCheckoutInsufficientStockIsAllOrNothing(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user := createUser(t, db, access.RoleCustomer)
	p1 := createProduct(t, db, "Ball", 100, 5)
	p2 := createProduct(t, db, "Net", 50, 1)

	_, err := store.AddToCart(ctx, db, user.ID, p1.ID, 2)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, db, user.ID, p2.ID, 1)
	require.NoError(t, err)

	_, err = store.SetStock(ctx, db, p2.ID, 0)
	require.NoError(t, err)

	_, err = store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: models.DeliveryPost})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	var stockErr *database.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, p2.ID, stockErr.ProductID)
	assert.Equal(t, "Net", stockErr.ProductName)

	assert.Equal(t, 5, stockOf(t, db, p1.ID))

	cart, err := store.GetCart(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)

	page, err := store.ListOrdersCursor(ctx, db, user.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestCheckoutEmptyCart(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user := createUser(t, db, access.RoleCustomer)

	_, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: models.DeliveryPickup})
	assert.ErrorIs(t, err, database.ErrEmptyCart)

	_, err = store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: "drone"})
	assert.ErrorIs(t, err, database.ErrInvalidDeliveryMethod)
}

func TestCheckoutRejectsWithdrawnProduct(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user := createUser(t, db, access.RoleCustomer)
	ball := createProduct(t, db, "Ball", 100, 5)
	old := createProduct(t, db, "Old Racket", 900, 5)

	_, err := store.AddToCart(ctx, db, user.ID, ball.ID, 1)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, db, user.ID, old.ID, 1)
	require.NoError(t, err)

	_, err = store.SetProductActive(ctx, db, old.ID, false)
	require.NoError(t, err)

	_, err = store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: models.DeliveryPickup})
	require.ErrorIs(t, err, database.ErrOutOfStock)
	assert.Contains(t, err.Error(), "Old Racket")

	assert.Equal(t, 5, stockOf(t, db, ball.ID))
	assert.Equal(t, 5, stockOf(t, db, old.ID))

	cart, err := store.GetCart(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestConcurrentCheckout(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	product := createProduct(t, db, "Limited Jersey", 100, 5)

	buyers := 6
	users := make([]*models.User, buyers)
	for i := range users {
		users[i] = createUser(t, db, access.RoleCustomer)
		_, err := store.AddToCart(ctx, db, users[i].ID, product.ID, 2)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, buyers)

	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: userID, DeliveryMethod: models.DeliveryPickup})
			results <- err
		}(u.ID)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, database.ErrInsufficientStock)
	}

	assert.Equal(t, 2, successCount)
	assert.Equal(t, 1, stockOf(t, db, product.ID))
}

func TestOrderItemPriceIsFrozen(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user := createUser(t, db, access.RoleCustomer)
	product := createProduct(t, db, "Racket", 1000, 3)

	_, err := store.AddToCart(ctx, db, user.ID, product.ID, 1)
	require.NoError(t, err)
	order, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: models.DeliveryPickup})
	require.NoError(t, err)

	_, err = store.UpdateProductPrice(ctx, db, product.ID, decimal.NewFromInt(1500), decimal.NullDecimal{})
	require.NoError(t, err)

	reloaded, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(reloaded.Items[0].Price))
	assert.True(t, decimal.NewFromInt(1000).Equal(reloaded.Subtotal))

	require.NoError(t, store.DeleteProduct(ctx, db, product.ID))

	reloaded, err = store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Nil(t, reloaded.Items[0].ProductID)
	assert.Equal(t, "Racket", reloaded.Items[0].ProductName)
}

func TestOrderStatusWorkflow(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	customer := createUser(t, db, access.RoleCustomer)
	manager := createUser(t, db, access.RoleManager)
	product := createProduct(t, db, "Skates", 300, 4)

	_, err := store.AddToCart(ctx, db, customer.ID, product.ID, 1)
	require.NoError(t, err)
	order, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: customer.ID, DeliveryMethod: models.DeliveryPickup})
	require.NoError(t, err)

	_, err = store.UpdateOrderStatus(ctx, db, customer, order.ID, "processing")
	assert.ErrorIs(t, err, database.ErrPermissionDenied)

	_, err = store.UpdateOrderStatus(ctx, db, manager, order.ID, "lost")
	assert.ErrorIs(t, err, database.ErrInvalidStatus)

	for _, next := range []string{"processing", "shipped", "delivered"} {
		order, err = store.UpdateOrderStatus(ctx, db, manager, order.ID, next)
		require.NoError(t, err, next)
	}
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.NotNil(t, order.DeliveredAt)

	_, err = store.UpdateOrderStatus(ctx, db, manager, order.ID, "pending")
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrInvalidStatus)

	var transitionErr *database.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "delivered", transitionErr.From)

	reloaded, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, reloaded.Status)
	assert.Equal(t, order.OrderNumber, reloaded.OrderNumber)

	history, err := store.OrderHistory(ctx, db, manager, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, models.OrderStatusPending, history[0].NewStatus)
	assert.Equal(t, models.OrderStatusShipped, history[3].OldStatus)
	assert.Equal(t, manager.ID, *history[3].ActorID)

	_, err = store.OrderHistory(ctx, db, customer, order.ID)
	assert.ErrorIs(t, err, database.ErrPermissionDenied)
}

func TestCancelOrderRestocks(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	owner := createUser(t, db, access.RoleCustomer)
	stranger := createUser(t, db, access.RoleCustomer)
	manager := createUser(t, db, access.RoleManager)
	product := createProduct(t, db, "Gloves", 40, 5)

	_, err := store.AddToCart(ctx, db, owner.ID, product.ID, 3)
	require.NoError(t, err)
	order, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: owner.ID, DeliveryMethod: models.DeliveryPickup})
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, db, product.ID))

	_, err = store.CancelOrder(ctx, db, stranger, order.ID)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	require.True(t, order.Cancellable())
	cancelled, err := store.CancelOrder(ctx, db, owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, stockOf(t, db, product.ID))

	_, err = store.CancelOrder(ctx, db, owner, order.ID)
	assert.ErrorIs(t, err, database.ErrNotCancellable)

	_, err = store.UpdateOrderStatus(ctx, db, manager, order.ID, "processing")
	assert.ErrorIs(t, err, database.ErrInvalidStatus)
}

func TestRefundSkipsDeletedProducts(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	customer := createUser(t, db, access.RoleCustomer)
	admin := createUser(t, db, access.RoleAdministrator)
	kept := createProduct(t, db, "Helmet", 200, 5)
	gone := createProduct(t, db, "Bottle", 10, 5)

	_, err := store.AddToCart(ctx, db, customer.ID, kept.ID, 1)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, db, customer.ID, gone.ID, 1)
	require.NoError(t, err)
	order, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: customer.ID, DeliveryMethod: models.DeliveryCarrier})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(210+350).Equal(order.TotalAmount))

	require.NoError(t, store.DeleteProduct(ctx, db, gone.ID))

	refunded, err := store.UpdateOrderStatus(ctx, db, admin, order.ID, "refunded")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, 5, stockOf(t, db, kept.ID))
}

func TestGetOrderForUser(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	owner := createUser(t, db, access.RoleCustomer)
	stranger := createUser(t, db, access.RoleCustomer)
	manager := createUser(t, db, access.RoleManager)
	product := createProduct(t, db, "Cap", 20, 5)

	_, err := store.AddToCart(ctx, db, owner.ID, product.ID, 1)
	require.NoError(t, err)
	order, err := store.Checkout(ctx, db, store.CheckoutRequest{UserID: owner.ID, DeliveryMethod: models.DeliveryPickup})
	require.NoError(t, err)

	_, err = store.GetOrderForUser(ctx, db, owner, order.ID)
	assert.NoError(t, err)
	_, err = store.GetOrderForUser(ctx, db, manager, order.ID)
	assert.NoError(t, err)
	_, err = store.GetOrderForUser(ctx, db, stranger, order.ID)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	page, err := store.ListOrders(ctx, db, manager, "pending", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = store.ListOrders(ctx, db, owner, "", 1, 10)
	assert.ErrorIs(t, err, database.ErrPermissionDenied)
}

func TestListOrdersCursor(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user := createUser(t, db, access.RoleCustomer)
	product := createProduct(t, db, "Socks", 100, 100)

	for i := 0; i < 15; i++ {
		_, err := store.AddToCart(ctx, db, user.ID, product.ID, 1)
		require.NoError(t, err)
		_, err = store.Checkout(ctx, db, store.CheckoutRequest{UserID: user.ID, DeliveryMethod: models.DeliveryPickup})
		require.NoError(t, err, "order %d", i)
	}

	page1, err := store.ListOrdersCursor(ctx, db, user.ID, "", 10)
	require.NoError(t, err)
	assert.True(t, page1.HasMore)
	assert.NotEmpty(t, page1.NextCursor)
	assert.Len(t, page1.Items, 10)

	page2, err := store.ListOrdersCursor(ctx, db, user.ID, page1.NextCursor, 10)
	require.NoError(t, err)
	assert.False(t, page2.HasMore)
	assert.Len(t, page2.Items, 5)
}
