// Package catalog serves categories, product reviews and the back-office
// dashboard through gorm, sharing the connection pool of the order store.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Catalog struct {
	db *gorm.DB
}

func New(sqlDB *sql.DB) (*Catalog, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) CreateCategory(ctx context.Context, actor access.Subject, name, slug, description string) (*models.Category, error) {
	if err := access.RequireManager(actor); err != nil {
		return nil, err
	}

	category := &models.Category{
		Name:        strings.TrimSpace(name),
		Slug:        strings.ToLower(strings.TrimSpace(slug)),
		Description: description,
	}

	if err := c.db.WithContext(ctx).Create(category).Error; err != nil {
		if database.IsUniqueViolation(err, "categories_slug_key") {
			return nil, database.ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func (c *Catalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := c.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (c *Catalog) GetCategory(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	err := c.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}

// CreateReview stores an unpublished review. A user reviews a product once.
func (c *Catalog) CreateReview(ctx context.Context, userID, productID int64, rating int, comment string) (*models.Review, error) {
	if !models.ValidRating(rating) {
		return nil, database.ErrInvalidRating
	}

	review := &models.Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	}

	if err := c.db.WithContext(ctx).Create(review).Error; err != nil {
		switch {
		case database.IsUniqueViolation(err, "reviews_product_user_key"):
			return nil, database.ErrDuplicateReview
		case database.IsForeignKeyViolation(err):
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

func (c *Catalog) ListReviews(ctx context.Context, productID int64, publishedOnly bool) ([]models.Review, error) {
	reviews := []models.Review{}

	q := c.db.WithContext(ctx).Where("product_id = ?", productID)
	if publishedOnly {
		q = q.Where("is_published")
	}

	if err := q.Order("created_at DESC, id DESC").Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// SetReviewPublished is the moderation switch; managers only.
func (c *Catalog) SetReviewPublished(ctx context.Context, actor access.Subject, reviewID int64, published bool) (*models.Review, error) {
	if err := access.RequireManager(actor); err != nil {
		return nil, err
	}

	var review models.Review
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&review, reviewID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return database.ErrReviewNotFound
			}
			return err
		}
		review.IsPublished = published
		review.UpdatedAt = time.Now()
		return tx.Model(&review).Updates(map[string]any{
			"is_published": review.IsPublished,
			"updated_at":   review.UpdatedAt,
		}).Error
	})
	if err != nil {
		if errors.Is(err, database.ErrReviewNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("publish review: %w", err)
	}

	return &review, nil
}

type Rating struct {
	Average decimal.Decimal `json:"average"`
	Count   int64           `json:"count"`
}

// ProductRating averages the published reviews of a product.
func (c *Catalog) ProductRating(ctx context.Context, productID int64) (Rating, error) {
	var (
		avg   sql.NullFloat64
		count int64
	)

	row := c.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("AVG(rating), COUNT(*)").
		Where("product_id = ? AND is_published", productID).
		Row()
	if err := row.Scan(&avg, &count); err != nil {
		return Rating{}, fmt.Errorf("product rating: %w", err)
	}

	rating := Rating{Average: decimal.Zero, Count: count}
	if avg.Valid {
		rating.Average = decimal.NewFromFloat(avg.Float64).Round(1)
	}
	return rating, nil
}

type DashboardStats struct {
	TotalOrders   int64           `json:"total_orders"`
	PendingOrders int64           `json:"pending_orders"`
	TotalUsers    int64           `json:"total_users"`
	TotalProducts int64           `json:"total_products"`
	Revenue       decimal.Decimal `json:"revenue"`
	TodayOrders   int64           `json:"today_orders"`
	WeeklyRevenue decimal.Decimal `json:"weekly_revenue"`
}

// DashboardStats summarizes the shop for the back office. Revenue counts
// delivered orders only.
func (c *Catalog) DashboardStats(ctx context.Context, actor access.Subject, now time.Time) (*DashboardStats, error) {
	if err := access.RequireManager(actor); err != nil {
		return nil, err
	}

	db := c.db.WithContext(ctx)
	stats := &DashboardStats{}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	counts := []struct {
		table string
		where string
		args  []any
		dest  *int64
	}{
		{"orders", "", nil, &stats.TotalOrders},
		{"orders", "status = ?", []any{models.OrderStatusPending}, &stats.PendingOrders},
		{"users", "", nil, &stats.TotalUsers},
		{"products", "", nil, &stats.TotalProducts},
		{"orders", "created_at >= ?", []any{startOfDay}, &stats.TodayOrders},
	}

	for _, q := range counts {
		tx := db.Table(q.table)
		if q.where != "" {
			tx = tx.Where(q.where, q.args...)
		}
		if err := tx.Count(q.dest).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", q.table, err)
		}
	}

	revenue := func(since *time.Time) (decimal.Decimal, error) {
		var total decimal.Decimal
		tx := db.Table("orders").
			Select("COALESCE(SUM(total_amount), 0)").
			Where("status = ?", models.OrderStatusDelivered)
		if since != nil {
			tx = tx.Where("created_at >= ?", *since)
		}
		err := tx.Row().Scan(&total)
		return total, err
	}

	var err error
	if stats.Revenue, err = revenue(nil); err != nil {
		return nil, fmt.Errorf("revenue: %w", err)
	}
	weekAgo := now.Add(-7 * 24 * time.Hour)
	if stats.WeeklyRevenue, err = revenue(&weekAgo); err != nil {
		return nil, fmt.Errorf("weekly revenue: %w", err)
	}

	return stats, nil
}
