package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/models"
)

const userColumns = `id, email, name, password_hash, role, is_superuser, created_at, updated_at, version`

type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         access.Role
	IsSuperuser  bool
}

func scanUser(row rowScanner, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

// CreateUser stores a new account. Every account gets its role here; an
// empty role means customer.
func CreateUser(ctx context.Context, db *sql.DB, u NewUser) (*models.User, error) {
	role := u.Role.Effective()
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", database.ErrInvalidRole, u.Role)
	}

	user := &models.User{}

	query := `
		INSERT INTO users (email, name, password_hash, role, is_superuser, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	email := strings.ToLower(strings.TrimSpace(u.Email))
	row := db.QueryRowContext(ctx, query, email, u.Name, u.PasswordHash, role, u.IsSuperuser)
	if err := scanUser(row, user); err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, database.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db *sql.DB, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`

	if err := scanUser(db.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`

	row := db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email)))
	if err := scanUser(row, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

// SetUserRole changes an account's role. Only administrators may do this.
func SetUserRole(ctx context.Context, db *sql.DB, actor access.Subject, userID int64, role access.Role) (*models.User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", database.ErrInvalidRole, role)
	}

	user := &models.User{}

	query := `
		UPDATE users
		SET role = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	if err := scanUser(db.QueryRowContext(ctx, query, role, userID), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("set user role: %w", err)
	}

	slog.InfoContext(ctx, "user role changed",
		"user_id", userID,
		"role", role,
		"actor_id", actor.UserID(),
	)

	return user, nil
}

func ListUsers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}
