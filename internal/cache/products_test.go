package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/testdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCacheIsDisabled(t *testing.T) {
	var c *ProductCache
	ctx := context.Background()

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	c.Set(ctx, &models.Product{ID: 1})
	c.Invalidate(ctx, 1)

	calls := 0
	fetch := func(context.Context, int64) (*models.Product, error) {
		calls++
		return &models.Product{ID: 1, Name: "Ball"}, nil
	}
	for i := 0; i < 2; i++ {
		p, err := c.Load(ctx, 1, fetch)
		require.NoError(t, err)
		assert.Equal(t, "Ball", p.Name)
	}
	assert.Equal(t, 2, calls)
}

func TestProductCacheAside(t *testing.T) {
	addr := testdb.NewRedis(t)
	ctx := context.Background()

	client := NewClient(&config.RedisConfig{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	c := NewProductCache(client, time.Minute)

	calls := 0
	fetch := func(_ context.Context, id int64) (*models.Product, error) {
		calls++
		return &models.Product{
			ID:            id,
			Name:          "Racket",
			Price:         decimal.NewFromInt(1000),
			DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(800)),
			StockQuantity: 3,
			InStock:       true,
		}, nil
	}

	first, err := c.Load(ctx, 7, fetch)
	require.NoError(t, err)
	second, err := c.Load(ctx, 7, fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.True(t, first.EffectivePrice().Equal(second.EffectivePrice()))
	assert.Equal(t, 3, second.StockQuantity)

	_, ok := c.Get(ctx, 8)
	assert.False(t, ok)

	c.Invalidate(ctx, 7)
	_, ok = c.Get(ctx, 7)
	assert.False(t, ok)

	_, err = c.Load(ctx, 9, func(context.Context, int64) (*models.Product, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	_, ok = c.Get(ctx, 9)
	assert.False(t, ok)
}
