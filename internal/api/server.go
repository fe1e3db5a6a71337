// Package api exposes the shop over HTTP.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/auth"
	"github.com/safar/sportshop/internal/cache"
	"github.com/safar/sportshop/internal/catalog"
	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/metrics"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
)

type Server struct {
	db       *sql.DB
	catalog  *catalog.Catalog
	products *cache.ProductCache
	tokens   *auth.TokenIssuer
	now      func() time.Time
}

// NewServer wires the handlers. products may be nil when caching is disabled.
func NewServer(db *sql.DB, cat *catalog.Catalog, products *cache.ProductCache, tokens *auth.TokenIssuer) *Server {
	return &Server{
		db:       db,
		catalog:  cat,
		products: products,
		tokens:   tokens,
		now:      time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(auth.Authenticate(s.tokens, s.loadUser))

		v1.Post("/auth/register", s.register)
		v1.Post("/auth/login", s.login)

		v1.Get("/categories", s.listCategories)
		v1.Get("/products", s.listProducts)
		v1.Get("/products/{id}", s.getProduct)
		v1.Get("/products/{id}/reviews", s.listReviews)

		v1.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)

			r.Get("/auth/me", s.me)

			r.Post("/categories", s.createCategory)
			r.Post("/products", s.createProduct)
			r.Delete("/products/{id}", s.deleteProduct)
			r.Patch("/products/{id}/price", s.updatePrice)
			r.Patch("/products/{id}/stock", s.updateStock)
			r.Patch("/products/{id}/active", s.setProductActive)
			r.Post("/products/{id}/reviews", s.createReview)

			r.Get("/cart", s.getCart)
			r.Delete("/cart", s.clearCart)
			r.Post("/cart/items/{productID}", s.addToCart)
			r.Put("/cart/items/{productID}", s.updateCartItem)
			r.Delete("/cart/items/{productID}", s.removeFromCart)

			r.Post("/checkout", s.checkout)

			r.Get("/orders", s.listMyOrders)
			r.Get("/orders/{id}", s.getOrder)
			r.Post("/orders/{id}/cancel", s.cancelOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(access.RequireManager))

				r.Get("/dashboard", s.dashboard)
				r.Get("/orders", s.listOrders)
				r.Patch("/orders/{id}/status", s.updateOrderStatus)
				r.Get("/orders/{id}/history", s.orderHistory)
				r.Patch("/reviews/{id}/publish", s.publishReview)

				r.Group(func(r chi.Router) {
					r.Use(requireRole(access.RequireAdmin))
					r.Get("/users", s.listUsers)
					r.Patch("/users/{id}/role", s.setUserRole)
				})
			})
		})
	})

	return r
}

func (s *Server) loadUser(ctx context.Context, id int64) (*models.User, error) {
	return store.GetUser(ctx, s.db, id)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireRole runs the access check against the authenticated user.
func requireRole(check func(access.Subject) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(currentUser(r)); err != nil {
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// currentUser is only called behind auth.RequireUser.
func currentUser(r *http.Request) *models.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

// NewHTTPServer applies the configured timeouts to handler.
func NewHTTPServer(handler http.Handler, cfg *config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
