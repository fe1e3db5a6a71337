package models

import (
	"time"

	"github.com/safar/sportshop/internal/access"
)

type User struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	PasswordHash string      `json:"-"`
	Role         access.Role `json:"role"`
	IsSuperuser  bool        `json:"is_superuser"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Version      int         `json:"version"`
}

func (u *User) UserID() int64 { return u.ID }
func (u *User) UserRole() access.Role { return u.Role }
func (u *User) Superuser() bool { return u.IsSuperuser }
