package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/dbtest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory/directorytest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

const (
	rolesDN = "ou=RealmRoles,dc=example,dc=org"
	johnDN  = "uid=john,ou=People,dc=example,dc=org"
)

func newTestConfig() *config.Config {
	return &config.Config{
		DevMode: true,
		Webserver: config.Webserver{
			Port:       8080,
			URL:        "http://localhost:8080",
			CheckAlive: "/checkalive",
		},
		Sync: config.Sync{Tick: time.Minute},
		Mappers: []config.Mapper{
			{
				Realm:             "test",
				Name:              "realmRolesMapper",
				Target:            "realm",
				Mode:              "import",
				RolesDN:           rolesDN,
				RoleObjectClasses: []string{"groupOfNames"},
				SyncInterval:      10 * time.Minute,
			},
			{
				Realm:             "test",
				Name:              "financeRolesMapper",
				Target:            "client:finance",
				Mode:              "directory_only",
				RolesDN:           "ou=FinanceRoles,dc=example,dc=org",
				RoleObjectClasses: []string{"groupOfNames"},
			},
		},
	}
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *directorytest.Server) {
	t.Helper()

	dir := directorytest.New()
	dir.Put("cn=realmRole1,"+rolesDN, map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {"realmRole1"},
		"member":      {johnDN},
	})

	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, "test", "john", johnDN)

	reg := prometheus.NewRegistry()

	d, err := New(context.Background(), cfg, Options{DB: db, Dialer: dir, Registerer: reg, Gatherer: reg})
	require.NoError(t, err)

	return d, dir
}

func TestNewAppliesMappers(t *testing.T) {
	d, _ := newTestDaemon(t, newTestConfig())
	ctx := context.Background()

	cfgs, err := d.Registry.List(ctx, "test")
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	assert.Equal(t, "financeRolesMapper", cfgs[0].Name)
	assert.Equal(t, mapper.DirectoryOnly, cfgs[0].Mode)
	assert.Equal(t, "finance", cfgs[0].Target.ClientID)
	assert.Equal(t, mapper.Import, cfgs[1].Mode)
	assert.Equal(t, 10*time.Minute, cfgs[1].SyncInterval)

	// applying twice replaces instead of duplicating
	n, err := d.ApplyMappers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cfgs, err = d.Registry.List(ctx, "test")
	require.NoError(t, err)
	assert.Len(t, cfgs, 2)
}

func TestNewRejectsInvalidMapper(t *testing.T) {
	cfg := newTestConfig()
	cfg.Mappers[1].Target = "finance"

	reg := prometheus.NewRegistry()

	_, err := New(context.Background(), cfg, Options{
		DB:         dbtest.Open(t),
		Dialer:     directorytest.New(),
		Registerer: reg,
		Gatherer:   reg,
	})
	require.ErrorIs(t, err, mapper.ErrInvalidMapper)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrNilConfig)
}

func TestWiredSyncAndRead(t *testing.T) {
	d, _ := newTestDaemon(t, newTestConfig())
	ctx := context.Background()

	snap, err := d.Snapshot(ctx, "test")
	require.NoError(t, err)

	_, err = d.Dispatcher.TriggerSync(ctx, snap, "realmRolesMapper")
	require.NoError(t, err)

	john, err := d.Users.ByUsername(ctx, "test", "john")
	require.NoError(t, err)
	assert.Equal(t, identity.UserRef{ID: john.ID, RealmID: "test", Username: "john", ExternalID: johnDN}, john)

	roles, err := d.Dispatcher.ListEffectiveRoles(ctx, snap, john)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "realmRole1", roles[0].Name)

	runs, err := d.History.Recent(ctx, "test", "realmRolesMapper", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
