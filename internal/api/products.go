package api

import (
	"context"
	"net/http"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/auth"
	"github.com/safar/sportshop/internal/catalog"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
	"github.com/shopspring/decimal"
)

type productResponse struct {
	*models.Product
	Rating catalog.Rating `json:"rating"`
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	category, err := s.catalog.CreateCategory(r.Context(), currentUser(r), req.Name, req.Slug, req.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProductFilter{
		InStockOnly: q.Get("in_stock") == "true",
		HasDiscount: q.Get("has_discount") == "true",
		Query:       q.Get("q"),
		Sort:        q.Get("sort"),
	}

	var err error
	if filter.MinPrice, err = queryPrice(r, "min_price"); err != nil {
		respondError(w, r, err)
		return
	}
	if filter.MaxPrice, err = queryPrice(r, "max_price"); err != nil {
		respondError(w, r, err)
		return
	}

	if slug := q.Get("category"); slug != "" {
		category, err := s.catalog.GetCategory(r.Context(), slug)
		if err != nil {
			respondError(w, r, err)
			return
		}
		filter.CategoryID = &category.ID
	}

	page, err := store.ListProducts(r.Context(), s.db, filter, queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// getProduct serves from the product cache. Inactive products are visible to
// staff only.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	product, err := s.products.Load(r.Context(), id, s.fetchProduct)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if !product.IsActive {
		user, _ := auth.UserFromContext(r.Context())
		if user == nil || !access.HasManagerRights(user) {
			respondError(w, r, database.ErrProductNotFound)
			return
		}
	}

	rating, err := s.catalog.ProductRating(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, productResponse{Product: product, Rating: rating})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	if err := access.RequireManager(currentUser(r)); err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		SKU           string              `json:"sku"`
		Name          string              `json:"name"`
		Description   string              `json:"description"`
		CategoryID    *int64              `json:"category_id"`
		Price         decimal.Decimal     `json:"price"`
		DiscountPrice decimal.NullDecimal `json:"discount_price"`
		Stock         int                 `json:"stock"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.SKU == "" || req.Name == "" {
		respondError(w, r, errMalformedBody)
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, store.NewProduct{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Stock:         req.Stock,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) updatePrice(w http.ResponseWriter, r *http.Request) {
	if err := access.RequireManager(currentUser(r)); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Price         decimal.Decimal     `json:"price"`
		DiscountPrice decimal.NullDecimal `json:"discount_price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	product, err := store.UpdateProductPrice(r.Context(), s.db, id, req.Price, req.DiscountPrice)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.products.Invalidate(r.Context(), id)
	respondJSON(w, http.StatusOK, product)
}

// updateStock overwrites the stock level. With a version it only applies if
// nobody changed the product since that version was read.
func (s *Server) updateStock(w http.ResponseWriter, r *http.Request) {
	if err := access.RequireManager(currentUser(r)); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Stock   int  `json:"stock"`
		Version *int `json:"version"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var product *models.Product
	if req.Version != nil {
		err = store.UpdateStockOptimistic(r.Context(), s.db, id, req.Stock, *req.Version)
		if err == nil {
			product, err = store.GetProduct(r.Context(), s.db, id)
		}
	} else {
		product, err = store.SetStock(r.Context(), s.db, id, req.Stock)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.products.Invalidate(r.Context(), id)
	respondJSON(w, http.StatusOK, product)
}

// setProductActive withdraws a product from sale or restores it.
func (s *Server) setProductActive(w http.ResponseWriter, r *http.Request) {
	if err := access.RequireManager(currentUser(r)); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Active == nil {
		respondError(w, r, errMalformedBody)
		return
	}

	product, err := store.SetProductActive(r.Context(), s.db, id, *req.Active)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.products.Invalidate(r.Context(), id)
	respondJSON(w, http.StatusOK, product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := access.RequireAdmin(currentUser(r)); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := store.DeleteProduct(r.Context(), s.db, id); err != nil {
		respondError(w, r, err)
		return
	}

	s.products.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// listReviews shows published reviews; staff also see the moderation queue.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	publishedOnly := true
	if user, ok := auth.UserFromContext(r.Context()); ok && access.HasManagerRights(user) {
		publishedOnly = r.URL.Query().Get("all") != "true"
	}

	reviews, err := s.catalog.ListReviews(r.Context(), id, publishedOnly)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	review, err := s.catalog.CreateReview(r.Context(), currentUser(r).ID, id, req.Rating, req.Comment)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

func (s *Server) fetchProduct(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, id)
}
