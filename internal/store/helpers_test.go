package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var seq atomic.Int64

func createUser(t *testing.T, db *sql.DB, role access.Role) *models.User {
	t.Helper()
	n := seq.Add(1)
	user, err := store.CreateUser(context.Background(), db, store.NewUser{
		Email: fmt.Sprintf("user%d@example.com", n),
		Name:  fmt.Sprintf("User %d", n),
		Role:  role,
	})
	require.NoError(t, err)
	return user
}

func createProduct(t *testing.T, db *sql.DB, name string, price int64, stock int) *models.Product {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		SKU:   fmt.Sprintf("SKU-%d", seq.Add(1)),
		Name:  name,
		Price: decimal.NewFromInt(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return product
}

func stockOf(t *testing.T, db *sql.DB, id int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), db, id)
	require.NoError(t, err)
	return p.StockQuantity
}
