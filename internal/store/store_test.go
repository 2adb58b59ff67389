package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/dbtest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

const realm = "test"

func names(roles []models.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.String())
	}

	return out
}

func TestGetOrCreateRole(t *testing.T) {
	db := dbtest.Open(t)
	s := store.New(db)
	ctx := context.Background()

	testCases := []struct {
		name        string
		key         store.RoleKey
		expectedErr error
		created     bool
	}{
		{
			name:    "new realm role",
			key:     store.RoleKey{RealmID: realm, Name: "realmRole1"},
			created: true,
		},
		{
			name: "existing realm role",
			key:  store.RoleKey{RealmID: realm, Name: "realmRole1"},
		},
		{
			name:    "same name in a client",
			key:     store.RoleKey{RealmID: realm, ClientID: "finance", Name: "realmRole1"},
			created: true,
		},
		{
			name:    "same name in another realm",
			key:     store.RoleKey{RealmID: "other", Name: "realmRole1"},
			created: true,
		},
		{
			name:        "missing name",
			key:         store.RoleKey{RealmID: realm},
			expectedErr: store.ErrInvalidRole,
		},
		{
			name:        "missing realm",
			key:         store.RoleKey{Name: "x"},
			expectedErr: store.ErrInvalidRole,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			role, created, err := s.GetOrCreateRole(ctx, tc.key)

			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.created, created)
			assert.NotZero(t, role.ID)
			assert.Equal(t, tc.key, store.KeyOf(role))
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Role{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestFindRole(t *testing.T) {
	s := store.New(dbtest.Open(t))
	ctx := context.Background()

	_, err := s.FindRole(ctx, store.RoleKey{RealmID: realm, Name: "missing"})
	require.ErrorIs(t, err, store.ErrRoleNotFound)

	created, _, err := s.GetOrCreateRole(ctx, store.RoleKey{RealmID: realm, ClientID: "finance", Name: "accountant"})
	require.NoError(t, err)

	found, err := s.FindRole(ctx, store.RoleKey{RealmID: realm, ClientID: "finance", Name: "accountant"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = s.FindRole(ctx, store.RoleKey{RealmID: realm, Name: "accountant"})
	require.ErrorIs(t, err, store.ErrRoleNotFound, "a client role is not a realm role")
}

func TestGrantAndRevoke(t *testing.T) {
	db := dbtest.Open(t)
	s := store.New(db)
	ctx := context.Background()

	john := dbtest.CreateUser(t, db, realm, "john", "")
	role1, _, err := s.GetOrCreateRole(ctx, store.RoleKey{RealmID: realm, Name: "realmRole1"})
	require.NoError(t, err)
	accountant, _, err := s.GetOrCreateRole(ctx, store.RoleKey{RealmID: realm, ClientID: "finance", Name: "accountant"})
	require.NoError(t, err)

	granted, err := s.Grant(ctx, john.ID, role1.ID)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = s.Grant(ctx, john.ID, role1.ID)
	require.NoError(t, err)
	assert.False(t, granted, "granting twice writes nothing")

	_, err = s.Grant(ctx, john.ID, accountant.ID)
	require.NoError(t, err)

	roles, err := s.ListRoles(ctx, john.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole1", "finance/accountant"}, names(roles))

	n, err := s.CountGrants(ctx, realm, "finance")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Revoke(ctx, john.ID, role1.ID))
	require.ErrorIs(t, s.Revoke(ctx, john.ID, role1.ID), store.ErrNotGranted)

	roles, err = s.ListRoles(ctx, john.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"finance/accountant"}, names(roles))
}

func TestGrantUnknownRoleFails(t *testing.T) {
	db := dbtest.Open(t)
	s := store.New(db)

	john := dbtest.CreateUser(t, db, realm, "john", "")

	_, err := s.Grant(context.Background(), john.ID, 4242)
	require.Error(t, err, "foreign keys are enforced")

	roles, err := s.ListRoles(context.Background(), john.ID)
	require.NoError(t, err)
	assert.Empty(t, roles, "a failed grant leaves nothing behind")
}

func TestListScopeRoles(t *testing.T) {
	s := store.New(dbtest.Open(t))
	ctx := context.Background()

	for _, key := range []store.RoleKey{
		{RealmID: realm, Name: "b"},
		{RealmID: realm, Name: "a"},
		{RealmID: realm, ClientID: "finance", Name: "c"},
		{RealmID: "other", Name: "d"},
	} {
		_, _, err := s.GetOrCreateRole(ctx, key)
		require.NoError(t, err)
	}

	roles, err := s.ListScopeRoles(ctx, realm, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(roles))

	roles, err = s.ListScopeRoles(ctx, realm, "finance")
	require.NoError(t, err)
	assert.Equal(t, []string{"finance/c"}, names(roles))
}
