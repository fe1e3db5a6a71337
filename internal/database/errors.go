package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// IsLockNotAvailable reports a NOWAIT lock failure.
func IsLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "55P03"
}

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrCartItemNotFound      = errors.New("cart item not found")
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryExists        = errors.New("category slug already exists")
	ErrReviewNotFound        = errors.New("review not found")
	ErrOutOfStock            = errors.New("out of stock")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrNotCancellable        = errors.New("order cannot be cancelled")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidDeliveryMethod = errors.New("invalid delivery method")
	ErrInvalidRole           = errors.New("invalid role")
	ErrInvalidRating         = errors.New("rating must be between 1 and 5")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailTaken            = errors.New("email already registered")
	ErrSKUTaken              = errors.New("sku already exists")
	ErrDuplicateReview       = errors.New("product already reviewed by this user")
	ErrOptimisticLockFailed  = errors.New("optimistic lock failed")
	ErrLockTimeout           = errors.New("lock timeout")
	ErrInvalidCursor         = errors.New("invalid cursor")
)

// StockError names the product whose stock could not cover a request.
// It unwraps to ErrOutOfStock or ErrInsufficientStock.
type StockError struct {
	Kind        error
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%v: %q requested %d, available %d", e.Kind, e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return e.Kind }

func NewOutOfStock(productID int64, name string, requested, available int) *StockError {
	return &StockError{Kind: ErrOutOfStock, ProductID: productID, ProductName: name, Requested: requested, Available: available}
}

func NewInsufficientStock(productID int64, name string, requested, available int) *StockError {
	return &StockError{Kind: ErrInsufficientStock, ProductID: productID, ProductName: name, Requested: requested, Available: available}
}

// TransitionError is returned when an order cannot move between two statuses.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidStatus, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatus }
