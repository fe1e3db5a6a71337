package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(secret string) *TokenIssuer {
	return NewTokenIssuer(&config.AuthConfig{JWTSecret: secret, TokenTTL: time.Hour, Issuer: "sportshop"})
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong horse"), database.ErrInvalidCredentials)

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = HashPassword(strings.Repeat("a", 72))
	assert.NoError(t, err)
	_, err = HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := newIssuer("secret")

	token, expires, err := issuer.Issue(42, time.Now())
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	id, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenRejected(t *testing.T) {
	issuer := newIssuer("secret")

	expired, _, err := issuer.Issue(1, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.Error(t, err)

	foreign, _, err := newIssuer("other").Issue(1, time.Now())
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	assert.Error(t, err)

	_, err = issuer.Parse("not-a-token")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	issuer := newIssuer("secret")
	users := map[int64]*models.User{7: {ID: 7, Role: access.RoleManager}}
	load := func(_ context.Context, id int64) (*models.User, error) {
		if u, ok := users[id]; ok {
			return u, nil
		}
		return nil, database.ErrUserNotFound
	}

	var seen *models.User
	handler := Authenticate(issuer, load)(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := issuer.Issue(7, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, access.RoleManager, seen.Role)

	ghost, _, err := issuer.Issue(99, time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+ghost)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
