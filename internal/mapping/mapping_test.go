package mapping_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

func TestNewUnknownMode(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(mapper.Import)
	cfg.Mode = "ldap_only"

	_, err := mapping.New(cfg, f.roles, f.dir.Adapter())
	require.ErrorIs(t, err, mapping.ErrUnknownMode)
}

func TestOriginString(t *testing.T) {
	assert.Equal(t, "local", mapping.OriginLocal.String())
	assert.Equal(t, "directory", mapping.OriginDirectory.String())

	text, err := mapping.OriginDirectory.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "directory", string(text))

	var o mapping.Origin

	require.NoError(t, o.UnmarshalText([]byte("directory")))
	assert.Equal(t, mapping.OriginDirectory, o)
	require.ErrorIs(t, o.UnmarshalText([]byte("ldap")), mapping.ErrUnknownOrigin)
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, f.config(mapper.Import))
	ctx := context.Background()

	role1 := f.role(t, "", "realmRole1")
	f.role(t, "", "realmRole2")
	f.grant(t, f.john, f.role(t, "account", "manage-account"))

	searches, writes := f.dir.Searches(), f.dir.Writes()

	roles, err := s.Read(ctx, f.john)
	require.NoError(t, err)
	assert.Empty(t, roles, "directory memberships are not visible before a sync")

	require.NoError(t, s.Grant(ctx, f.john, "realmRole2"))
	require.NoError(t, s.Grant(ctx, f.admin, "realmRole1"), "local users can hold mapped roles")

	roles, err = s.Read(ctx, f.john)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole2"}, roleNames(roles), "roles outside the target set are not reported")

	facts, err := s.Facts(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, role1.ID, facts[0].Role.ID)
	assert.Equal(t, mapping.OriginLocal, facts[0].Origin)

	require.NoError(t, s.Revoke(ctx, f.john, "realmRole2"))
	require.ErrorIs(t, s.Revoke(ctx, f.john, "realmRole2"), store.ErrNotGranted)
	require.ErrorIs(t, s.Grant(ctx, f.john, "unknown"), store.ErrRoleNotFound)

	assert.Equal(t, searches, f.dir.Searches(), "import mode never reads the directory")
	assert.Equal(t, writes, f.dir.Writes(), "import mode never writes the directory")
}

func TestDirectoryOnly(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, f.config(mapper.DirectoryOnly))
	ctx := context.Background()

	roles, err := s.Read(ctx, f.john)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole1"}, roleNames(roles))

	_, err = f.roles.FindRole(ctx, store.RoleKey{RealmID: realm, Name: "realmRole1"})
	require.NoError(t, err, "the role record is created on first read")

	require.NoError(t, s.Grant(ctx, f.john, "realmRole2"))
	assert.Equal(t, []string{johnDN}, f.dir.Values("cn=realmRole2,"+rolesDN, "member"), "placeholder is replaced")

	require.NoError(t, s.Grant(ctx, f.john, "realmRole2"), "granting twice succeeds")

	roles, err = s.Read(ctx, f.john)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"realmRole1", "realmRole2"}, roleNames(roles))

	facts, err := s.Facts(ctx, f.john)
	require.NoError(t, err)

	for _, fact := range facts {
		assert.Equal(t, mapping.OriginDirectory, fact.Origin)
	}

	require.NoError(t, s.Revoke(ctx, f.john, "realmRole1"))
	assert.Equal(t, []string{directory.MembershipPlaceholder}, f.dir.Values("cn=realmRole1,"+rolesDN, "member"))
	require.ErrorIs(t, s.Revoke(ctx, f.john, "realmRole1"), store.ErrNotGranted)
	require.ErrorIs(t, s.Revoke(ctx, f.john, "missing"), store.ErrRoleNotFound)

	assert.Zero(t, f.localGrants(t, ""), "no local grant rows in directory only mode")
}

func TestDirectoryOnlyGrantCreatesMissingRole(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, f.config(mapper.DirectoryOnly))
	ctx := context.Background()

	require.NoError(t, s.Grant(ctx, f.mary, "realmRole3"))

	dn := "cn=realmRole3," + rolesDN
	require.True(t, f.dir.Exists(dn))
	assert.Equal(t, []string{maryDN}, f.dir.Values(dn, "member"))
	assert.Equal(t, []string{"groupOfNames"}, f.dir.Values(dn, "objectClass"))

	roles, err := s.Read(ctx, f.mary)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole3"}, roleNames(roles))
	assert.Zero(t, f.localGrants(t, ""))
}

func TestDirectoryOnlyLocalUser(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, f.config(mapper.DirectoryOnly))
	ctx := context.Background()

	roles, err := s.Read(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, roles)

	err = s.Grant(ctx, f.admin, "realmRole1")
	require.ErrorIs(t, err, mapping.ErrUserNotFederated)
	require.ErrorIs(t, err, identity.ErrUserNotFound)
	require.ErrorIs(t, s.Revoke(ctx, f.admin, "realmRole1"), mapping.ErrUserNotFederated)
}

func TestDirectoryOnlyRetrieveStrategies(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(cfg *mapper.Config)
	}{
		{
			name:   "member attribute with dn",
			mutate: func(_ *mapper.Config) {},
		},
		{
			name:   "memberOf on the user",
			mutate: func(cfg *mapper.Config) { cfg.RetrieveStrategy = mapper.ByMemberOf },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			cfg := f.config(mapper.DirectoryOnly)
			tc.mutate(&cfg)

			roles, err := f.strategy(t, cfg).Read(context.Background(), f.john)
			require.NoError(t, err)
			assert.Equal(t, []string{"realmRole1"}, roleNames(roles), "groups outside the roles dn are ignored")
		})
	}
}

func TestDirectoryOnlyUIDMembership(t *testing.T) {
	f := newFixture(t)
	f.dir.Put("cn=posixRole,"+rolesDN, map[string][]string{
		"objectClass": {"posixGroup"},
		"cn":          {"posixRole"},
		"memberUid":   {"mary"},
	})

	cfg := f.config(mapper.DirectoryOnly)
	cfg.RoleObjectClasses = []string{"posixGroup"}
	cfg.MembershipAttribute = "memberUid"
	cfg.MembershipAttributeType = mapper.MembershipUID

	s := f.strategy(t, cfg)
	ctx := context.Background()

	roles, err := s.Read(ctx, f.mary)
	require.NoError(t, err)
	assert.Equal(t, []string{"posixRole"}, roleNames(roles))

	require.NoError(t, s.Grant(ctx, f.john, "posixRole"))
	assert.ElementsMatch(t, []string{"mary", "john"}, f.dir.Values("cn=posixRole,"+rolesDN, "memberUid"))
}

func TestReadOnly(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, f.config(mapper.ReadOnly))
	ctx := context.Background()

	f.dir.AddValue("cn=realmRole1,"+rolesDN, "member", maryDN)
	f.grant(t, f.mary, f.role(t, "", "realmRole3"))

	roles, err := s.Read(ctx, f.mary)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole1", "realmRole3"}, roleNames(roles))

	before := f.dir.Values("cn=realmRole1,"+rolesDN, "member")

	err = s.Revoke(ctx, f.mary, "realmRole1")
	require.ErrorIs(t, err, mapping.ErrReadOnlyViolation)
	assert.Equal(t, before, f.dir.Values("cn=realmRole1,"+rolesDN, "member"), "directory is left untouched")

	require.NoError(t, s.Revoke(ctx, f.mary, "realmRole3"))

	roles, err = s.Read(ctx, f.mary)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole1"}, roleNames(roles))
}

func TestReadOnlyMergeDeduplicates(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, f.config(mapper.ReadOnly))
	ctx := context.Background()
	writes := f.dir.Writes()

	roles, err := s.Read(ctx, f.john)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole1"}, roleNames(roles))

	// granted locally as well
	require.NoError(t, s.Grant(ctx, f.john, "realmRole1"))

	roles, err = s.Read(ctx, f.john)
	require.NoError(t, err)
	assert.Equal(t, []string{"realmRole1"}, roleNames(roles), "a role held in both stores appears once")

	facts, err := s.Facts(ctx, f.john)
	require.NoError(t, err)
	assert.Len(t, facts, 2, "one fact per store")

	require.ErrorIs(t, s.Revoke(ctx, f.john, "realmRole1"), mapping.ErrReadOnlyViolation,
		"a local grant shadowed by the directory can not be revoked")
	assert.Equal(t, writes, f.dir.Writes(), "read only mode never writes the directory")
}

func TestDirectoryErrorsPropagate(t *testing.T) {
	testCases := []struct {
		mode mapper.Mode
		call func(s mapping.Strategy, f *fixture) error
	}{
		{
			mode: mapper.DirectoryOnly,
			call: func(s mapping.Strategy, f *fixture) error {
				_, err := s.Read(context.Background(), f.john)
				return err
			},
		},
		{
			mode: mapper.DirectoryOnly,
			call: func(s mapping.Strategy, f *fixture) error { return s.Grant(context.Background(), f.john, "realmRole2") },
		},
		{
			mode: mapper.ReadOnly,
			call: func(s mapping.Strategy, f *fixture) error { return s.Revoke(context.Background(), f.john, "realmRole1") },
		},
	}

	for _, tc := range testCases {
		t.Run(string(tc.mode), func(t *testing.T) {
			f := newFixture(t)
			s := f.strategy(t, f.config(tc.mode))

			f.dir.FailWith(ldap.NewError(ldap.LDAPResultUnavailable, errors.New("down"))) //nolint:goerr113

			err := tc.call(s, f)

			var de *directory.DirectoryError

			require.ErrorAs(t, err, &de)
			assert.True(t, de.Temporary())
		})
	}
}
