package api

import (
	"net/http"

	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
	"github.com/shopspring/decimal"
)

type cartResponse struct {
	Success bool `json:"success"`
	models.CartSummary
}

type cartView struct {
	Items        []models.CartItem `json:"items"`
	CartCount    int               `json:"cart_count"`
	CartSubtotal decimal.Decimal   `json:"cart_subtotal"`
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := store.GetCart(r.Context(), s.db, currentUser(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cartView{
		Items:        cart.Items,
		CartCount:    cart.TotalQuantity(),
		CartSubtotal: cart.TotalPrice(),
	})
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	err := store.ClearCart(r.Context(), s.db, currentUser(r).ID)
	respondCart(w, r, &models.CartSummary{ItemTotal: decimal.Zero, CartSubtotal: decimal.Zero}, err)
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

// addToCart adds one unit unless a quantity is given.
func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req quantityRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	summary, err := store.AddToCart(r.Context(), s.db, currentUser(r).ID, productID, quantity)
	respondCart(w, r, summary, err)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Quantity == nil {
		respondError(w, r, errMalformedBody)
		return
	}

	summary, err := store.UpdateCartItem(r.Context(), s.db, currentUser(r).ID, productID, *req.Quantity)
	respondCart(w, r, summary, err)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := store.RemoveFromCart(r.Context(), s.db, currentUser(r).ID, productID)
	respondCart(w, r, summary, err)
}

func respondCart(w http.ResponseWriter, r *http.Request, summary *models.CartSummary, err error) {
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Success: true, CartSummary: *summary})
}
