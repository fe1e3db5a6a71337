package store_test

import (
	"context"
	"testing"

	"github.com/safar/sportshop/internal/access"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/store"
	"github.com/safar/sportshop/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserAssignsRole(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, store.NewUser{Email: "Buyer@Example.com", Name: "Buyer"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleCustomer, user.Role)
	assert.Equal(t, "buyer@example.com", user.Email)

	_, err = store.CreateUser(ctx, db, store.NewUser{Email: "buyer@example.com", Name: "Again"})
	assert.ErrorIs(t, err, database.ErrEmailTaken)

	_, err = store.CreateUser(ctx, db, store.NewUser{Email: "x@example.com", Name: "X", Role: "owner"})
	assert.ErrorIs(t, err, database.ErrInvalidRole)

	found, err := store.GetUserByEmail(ctx, db, "BUYER@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestSetUserRoleRequiresAdmin(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	customer := createUser(t, db, access.RoleCustomer)
	admin := createUser(t, db, access.RoleAdministrator)
	target := createUser(t, db, access.RoleCustomer)

	_, err := store.SetUserRole(ctx, db, customer, target.ID, access.RoleManager)
	assert.ErrorIs(t, err, database.ErrPermissionDenied)

	updated, err := store.SetUserRole(ctx, db, admin, target.ID, access.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, access.RoleManager, updated.Role)

	super, err := store.CreateUser(ctx, db, store.NewUser{Email: "root@example.com", Name: "Root", IsSuperuser: true})
	require.NoError(t, err)
	_, err = store.SetUserRole(ctx, db, super, target.ID, access.RoleAdministrator)
	assert.NoError(t, err)

	_, err = store.SetUserRole(ctx, db, admin, 999999, access.RoleManager)
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	page, err := store.ListUsers(ctx, db, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
}
