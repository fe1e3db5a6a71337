package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/sportshop/internal/auth"
	"github.com/safar/sportshop/internal/database"
	"github.com/shopspring/decimal"
)

var (
	errMalformedBody = errors.New("malformed request body")
	errInvalidID     = errors.New("invalid id")
)

type errorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// respondError maps err to a status code. Unexpected errors are logged and
// hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal server error"
	}
	respondJSON(w, status, errorResponse{Error: message})
}

func errorStatus(err error) int {
	var stockErr *database.StockError

	switch {
	case errors.As(err, &stockErr),
		errors.Is(err, database.ErrOutOfStock),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrEmailTaken),
		errors.Is(err, database.ErrSKUTaken),
		errors.Is(err, database.ErrCategoryExists),
		errors.Is(err, database.ErrDuplicateReview),
		errors.Is(err, database.ErrOptimisticLockFailed),
		errors.Is(err, database.ErrLockTimeout):
		return http.StatusConflict

	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCartItemNotFound),
		errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, database.ErrReviewNotFound):
		return http.StatusNotFound

	case errors.Is(err, database.ErrPermissionDenied):
		return http.StatusForbidden

	case errors.Is(err, database.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, database.ErrEmptyCart),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrNotCancellable),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidPrice),
		errors.Is(err, database.ErrInvalidDeliveryMethod),
		errors.Is(err, database.ErrInvalidRole),
		errors.Is(err, database.ErrInvalidRating),
		errors.Is(err, database.ErrInvalidCursor),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, errMalformedBody),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// decodeOptionalJSON leaves dst untouched when the request has no body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, chi.URLParam(r, name))
	}
	return id, nil
}

// queryPrice reads an optional non-negative decimal query parameter.
func queryPrice(r *http.Request, name string) (decimal.NullDecimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s %q", database.ErrInvalidPrice, name, raw)
	}
	return decimal.NewNullDecimal(d), nil
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
