package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
)

type ctxKey struct{}

// UserLoader fetches the current state of a user, role included.
type UserLoader func(ctx context.Context, id int64) (*models.User, error)

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*models.User)
	return user, ok && user != nil
}

// Authenticate resolves a bearer token to a user and stores it in the request
// context. Requests without a token pass through anonymously; a bad token is
// rejected.
func Authenticate(issuer *TokenIssuer, load UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "malformed authorization header")
				return
			}

			userID, err := issuer.Parse(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			user, err := load(r.Context(), userID)
			if err != nil {
				if errors.Is(err, database.ErrUserNotFound) {
					unauthorized(w, "invalid token")
					return
				}
				slog.ErrorContext(r.Context(), "load user", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sportshop"`)
	writeError(w, http.StatusUnauthorized, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
