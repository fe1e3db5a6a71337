package auth

import (
	"errors"
	"fmt"

	"github.com/safar/sportshop/internal/database"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt only reads this many bytes and rejects longer input.
	maxPasswordBytes = 72
)

var (
	ErrWeakPassword    = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
)

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword returns ErrInvalidCredentials on any mismatch.
func CheckPassword(hash, password string) error {
	if len(password) > maxPasswordBytes {
		return database.ErrInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
		return database.ErrInvalidCredentials
	}
	return fmt.Errorf("check password: %w", err)
}
