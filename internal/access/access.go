// Package access implements the role gate used by back-office workflows.
//
// Checks are evaluated against the subject passed in on every call; nothing is
// cached and nothing is written.
package access

import (
	"fmt"
	"strings"

	"github.com/safar/sportshop/internal/database"
)

type Role string

const (
	RoleCustomer      Role = "customer"
	RoleManager       Role = "manager"
	RoleAdministrator Role = "administrator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleManager, RoleAdministrator:
		return true
	}
	return false
}

// Effective returns the role a check should use. An unset role reads as customer.
func (r Role) Effective() Role {
	if r == "" {
		return RoleCustomer
	}
	return r
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", database.ErrInvalidRole, s)
	}
	return r, nil
}

// Subject is anything the gate can authorize.
type Subject interface {
	UserID() int64
	UserRole() Role
	Superuser() bool
}

func HasManagerRights(s Subject) bool {
	if s == nil {
		return false
	}
	if s.Superuser() {
		return true
	}
	role := s.UserRole().Effective()
	return role == RoleManager || role == RoleAdministrator
}

func HasAdminRights(s Subject) bool {
	if s == nil {
		return false
	}
	return s.Superuser() || s.UserRole().Effective() == RoleAdministrator
}

func RequireManager(s Subject) error {
	if !HasManagerRights(s) {
		return database.ErrPermissionDenied
	}
	return nil
}

func RequireAdmin(s Subject) error {
	if !HasAdminRights(s) {
		return database.ErrPermissionDenied
	}
	return nil
}

// CanViewOrder reports whether s may read an order owned by ownerID.
func CanViewOrder(s Subject, ownerID int64) bool {
	if s == nil {
		return false
	}
	return s.UserID() == ownerID || HasManagerRights(s)
}
