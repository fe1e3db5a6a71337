package api

import (
	"net/http"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/store"
)

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.DashboardStats(r.Context(), currentUser(r), s.now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := store.ListOrders(r.Context(), s.db, currentUser(r),
		r.URL.Query().Get("status"), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := store.UpdateOrderStatus(r.Context(), s.db, currentUser(r), id, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if order.Status.Restocks() {
		s.invalidateOrderProducts(r.Context(), order)
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) orderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	history, err := store.OrderHistory(r.Context(), s.db, currentUser(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// publishReview publishes a review, or hides it again with {"published": false}.
func (s *Server) publishReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	req := struct {
		Published bool `json:"published"`
	}{Published: true}
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	review, err := s.catalog.SetReviewPublished(r.Context(), currentUser(r), id, req.Published)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, review)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := store.ListUsers(r.Context(), s.db, queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) setUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	role, err := access.ParseRole(req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user, err := store.SetUserRole(r.Context(), s.db, currentUser(r), id, role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
