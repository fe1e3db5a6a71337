package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
)

type checkoutResponse struct {
	Success     bool   `json:"success"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeliveryMethod models.DeliveryMethod `json:"delivery_method"`
		PaymentMethod  string                `json:"payment_method"`
		Notes          string                `json:"notes"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.DeliveryMethod == "" {
		req.DeliveryMethod = models.DeliveryPickup
	}

	order, err := store.Checkout(r.Context(), s.db, store.CheckoutRequest{
		UserID:         currentUser(r).ID,
		DeliveryMethod: req.DeliveryMethod,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
	})
	if err != nil {
		if errors.Is(err, database.ErrEmptyCart) {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Redirect: "/cart"})
			return
		}
		respondError(w, r, err)
		return
	}

	s.invalidateOrderProducts(r.Context(), order)
	respondJSON(w, http.StatusCreated, checkoutResponse{
		Success:     true,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	})
}

func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	page, err := store.ListOrdersCursor(r.Context(), s.db, currentUser(r).ID,
		r.URL.Query().Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	order, err := store.GetOrderForUser(r.Context(), s.db, currentUser(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	order, err := store.CancelOrder(r.Context(), s.db, currentUser(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidateOrderProducts(r.Context(), order)
	respondJSON(w, http.StatusOK, order)
}

// invalidateOrderProducts drops cached stock levels touched by the order.
func (s *Server) invalidateOrderProducts(ctx context.Context, order *models.Order) {
	ids := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID != nil {
			ids = append(ids, *item.ProductID)
		}
	}
	s.products.Invalidate(ctx, ids...)
}
