// Package cache keeps product reads in Redis. A nil *ProductCache is valid
// and behaves as an always-missing cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/metrics"
	"github.com/safar/sportshop/internal/models"
)

func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

// Load returns the product from the cache, or from fetch on a miss and then
// caches it.
func (c *ProductCache) Load(ctx context.Context, id int64, fetch func(context.Context, int64) (*models.Product, error)) (*models.Product, error) {
	if cached, ok := c.Get(ctx, id); ok {
		return cached, nil
	}

	product, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Set(ctx, product)
	return product, nil
}

func (c *ProductCache) Get(ctx context.Context, id int64) (*models.Product, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "redis get failed", "product_id", id, "error", err)
			metrics.ProductCache.WithLabelValues("error").Inc()
		} else {
			metrics.ProductCache.WithLabelValues("miss").Inc()
		}
		return nil, false
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil || product.ID != id {
		slog.WarnContext(ctx, "dropping bad cache entry", "product_id", id, "error", err)
		c.Invalidate(ctx, id)
		metrics.ProductCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.ProductCache.WithLabelValues("hit").Inc()
	return &product, true
}

// Set caches products with the configured TTL. Failures are logged only.
func (c *ProductCache) Set(ctx context.Context, products ...*models.Product) {
	if c == nil || len(products) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for _, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			slog.WarnContext(ctx, "marshal product for cache", "product_id", p.ID, "error", err)
			continue
		}
		pipe.Set(ctx, productKey(p.ID), data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "redis pipeline failed", "error", err)
	}
}

func (c *ProductCache) Invalidate(ctx context.Context, ids ...int64) {
	if c == nil || len(ids) == 0 {
		return
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.WarnContext(ctx, "redis del failed", "error", err)
	}
}

func productKey(id int64) string {
	return fmt.Sprintf("sportshop:product:%d", id)
}
