package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/auth"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/safar/sportshop/internal/store"
)

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// register creates a customer account. Staff roles are granted afterwards by
// an administrator.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		respondError(w, r, errMalformedBody)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), s.db, store.NewUser{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         access.RoleCustomer,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.respondToken(w, r, http.StatusCreated, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := store.GetUserByEmail(r.Context(), s.db, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			err = database.ErrInvalidCredentials
		}
		respondError(w, r, err)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, r, err)
		return
	}

	s.respondToken(w, r, http.StatusOK, user)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) respondToken(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, expires, err := s.tokens.Issue(user.ID, s.now())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, status, tokenResponse{Token: token, ExpiresAt: expires, User: user})
}
