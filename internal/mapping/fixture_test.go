package mapping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/dbtest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory/directorytest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

const (
	realm   = "test"
	rolesDN = "ou=RealmRoles,dc=example,dc=org"
	johnDN  = "uid=john,ou=People,dc=example,dc=org"
	maryDN  = "uid=mary,ou=People,dc=example,dc=org"
)

type fixture struct {
	db    *gorm.DB
	dir   *directorytest.Server
	roles *store.Store
	john  identity.UserRef
	mary  identity.UserRef
	admin identity.UserRef
}

// newFixture seeds realmRole1 (john) and realmRole2 (no members) in the directory.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	dir := directorytest.New()

	dir.Put(rolesDN, map[string][]string{"objectClass": {"organizationalUnit"}, "ou": {"RealmRoles"}})
	dir.Put("cn=realmRole1,"+rolesDN, map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {"realmRole1"},
		"member":      {johnDN},
	})
	dir.Put("cn=realmRole2,"+rolesDN, map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {"realmRole2"},
		"member":      {directory.MembershipPlaceholder},
	})
	dir.Put(johnDN, map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"john"},
		"memberOf":    {"cn=realmRole1," + rolesDN, "cn=staff,ou=Groups,dc=example,dc=org"},
	})
	dir.Put(maryDN, map[string][]string{"objectClass": {"inetOrgPerson"}, "uid": {"mary"}})

	return &fixture{
		db:    db,
		dir:   dir,
		roles: store.New(db),
		john:  identity.FromModel(dbtest.CreateUser(t, db, realm, "john", johnDN)),
		mary:  identity.FromModel(dbtest.CreateUser(t, db, realm, "mary", maryDN)),
		admin: identity.FromModel(dbtest.CreateUser(t, db, realm, "admin", "")),
	}
}

func (f *fixture) config(mode mapper.Mode) mapper.Config {
	cfg, err := mapper.Config{
		RealmID: realm,
		Name:    "realmRolesMapper",
		Mode:    mode,
		RolesDN: rolesDN,
	}.Validate()
	if err != nil {
		panic(err)
	}

	return cfg
}

func (f *fixture) strategy(t *testing.T, cfg mapper.Config) mapping.Strategy {
	t.Helper()

	s, err := mapping.New(cfg, f.roles, f.dir.Adapter())
	require.NoError(t, err)
	require.Equal(t, cfg.Mode, s.Mode())

	return s
}

func (f *fixture) role(t *testing.T, clientID, name string) models.Role {
	t.Helper()

	r, _, err := f.roles.GetOrCreateRole(context.Background(), store.RoleKey{RealmID: realm, ClientID: clientID, Name: name})
	require.NoError(t, err)

	return r
}

func (f *fixture) grant(t *testing.T, user identity.UserRef, role models.Role) {
	t.Helper()

	_, err := f.roles.Grant(context.Background(), user.ID, role.ID)
	require.NoError(t, err)
}

func (f *fixture) localGrants(t *testing.T, clientID string) int64 {
	t.Helper()

	n, err := f.roles.CountGrants(context.Background(), realm, clientID)
	require.NoError(t, err)

	return n
}

func roleNames(roles []models.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}

	return out
}
