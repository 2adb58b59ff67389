package rolesync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/dbtest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory/directorytest"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

const (
	realm   = "test"
	rolesDN = "ou=RealmRoles,dc=example,dc=org"
	johnDN  = "uid=john,ou=People,dc=example,dc=org"
	maryDN  = "uid=mary,ou=People,dc=example,dc=org"
	ghostDN = "uid=ghost,ou=People,dc=example,dc=org"
)

type fixture struct {
	db      *gorm.DB
	dir     *directorytest.Server
	roles   *store.Store
	history *rolesync.History
	reg     *prometheus.Registry
	engine  *rolesync.Engine
	john    identity.UserRef
	mary    identity.UserRef
}

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

	f := &fixture{
		db:      db,
		dir:     dir,
		roles:   store.New(db),
		history: rolesync.NewHistory(db),
		reg:     prometheus.NewRegistry(),
		john:    identity.FromModel(dbtest.CreateUser(t, db, realm, "john", johnDN)),
		mary:    identity.FromModel(dbtest.CreateUser(t, db, realm, "mary", maryDN)),
	}

	f.engine = rolesync.New(f.roles, dir.Adapter(), identity.NewDBResolver(db),
		rolesync.WithHistory(f.history),
		rolesync.WithRegisterer(f.reg),
	)

	return f
}

func noop() error { return nil }

func config(mode mapper.Mode) mapper.Config {
	cfg, err := mapper.Config{RealmID: realm, Name: "realmRolesMapper", Mode: mode, RolesDN: rolesDN}.Validate()
	if err != nil {
		panic(err)
	}

	return cfg
}

func (f *fixture) roleNames(t *testing.T, user identity.UserRef) []string {
	t.Helper()

	roles, err := f.roles.ListRoles(context.Background(), user.ID)
	require.NoError(t, err)

	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}

	return out
}

func TestRunImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	assert.Equal(t, rolesync.StateCompleted, res.State)
	assert.Equal(t, 2, res.RolesCreated)
	assert.Equal(t, 1, res.GrantsAdded)
	assert.Equal(t, rolesync.StateCompleted, f.engine.State(realm, "realmRolesMapper"))

	assert.Equal(t, []string{"realmRole1"}, f.roleNames(t, f.john))
	assert.Empty(t, f.roleNames(t, f.mary))

	roles, err := f.roles.ListScopeRoles(ctx, realm, "")
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	writes := dbtest.Writes(t, f.db, "roles", "user_role_mappings")

	res, err := f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	assert.Zero(t, writes(), "a second run over an unchanged directory writes nothing")
	assert.Zero(t, res.RolesCreated)
	assert.Equal(t, 2, res.RolesExisting)
	assert.Zero(t, res.GrantsAdded)
}

func TestRunNeverDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	// out of band edits: membership removed, role object deleted
	f.dir.RemoveValue("cn=realmRole1,"+rolesDN, "member", johnDN)
	f.dir.Remove("cn=realmRole2," + rolesDN)

	_, err = f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	assert.Equal(t, []string{"realmRole1"}, f.roleNames(t, f.john), "local grant survives directory removal")

	roles, err := f.roles.ListScopeRoles(ctx, realm, "")
	require.NoError(t, err)
	assert.Len(t, roles, 2, "local role survives directory removal")
}

func TestRunNonImportModesDoNotGrant(t *testing.T) {
	for _, mode := range []mapper.Mode{mapper.DirectoryOnly, mapper.ReadOnly} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t)

			res, err := f.engine.Run(context.Background(), config(mode))
			require.NoError(t, err)

			assert.Equal(t, 2, res.RolesCreated)
			assert.Zero(t, res.GrantsAdded)

			n, err := f.roles.CountGrants(context.Background(), realm, "")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRunPartialFailure(t *testing.T) {
	f := newFixture(t)

	f.dir.AddValue("cn=realmRole2,"+rolesDN, "member", ghostDN)
	f.dir.AddValue("cn=realmRole2,"+rolesDN, "member", maryDN)
	f.dir.Put("cn=nameless,"+rolesDN, map[string][]string{"objectClass": {"groupOfNames"}, "member": {johnDN}})

	res, err := f.engine.Run(context.Background(), config(mapper.Import))

	var partial *rolesync.PartialSyncFailure

	require.ErrorAs(t, err, &partial)
	assert.True(t, rolesync.IsPartial(err))
	assert.Len(t, partial.Failures, 2)
	require.ErrorIs(t, err, identity.ErrUserNotFound)
	require.ErrorIs(t, err, rolesync.ErrMissingRoleName)

	assert.Equal(t, rolesync.StateCompleted, res.State, "failures do not abort the run")
	assert.Equal(t, []string{"realmRole2"}, f.roleNames(t, f.mary), "members after a failure are still granted")
}

func TestRunDirectoryFailure(t *testing.T) {
	f := newFixture(t)

	f.dir.FailWith(ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset"))) //nolint:goerr113

	res, err := f.engine.Run(context.Background(), config(mapper.Import))

	var de *directory.DirectoryError

	require.ErrorAs(t, err, &de)
	assert.True(t, de.Temporary())
	assert.Equal(t, rolesync.StateFailed, res.State)
	assert.Equal(t, rolesync.StateFailed, f.engine.State(realm, "realmRolesMapper"))
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.engine.Run(ctx, config(mapper.Import))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, rolesync.StateFailed, res.State)

	// a re-run completes the work
	res, err = f.engine.Run(context.Background(), config(mapper.Import))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RolesCreated)
}

func TestRunSingleFlight(t *testing.T) {
	f := newFixture(t)
	cfg := config(mapper.Import)

	release := f.dir.Block()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, err := f.engine.Run(context.Background(), cfg)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return f.engine.State(realm, cfg.Name) == rolesync.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	_, err := f.engine.Run(context.Background(), cfg)
	require.ErrorIs(t, err, rolesync.ErrSyncInProgress)
	require.ErrorIs(t, f.engine.Exclusive(realm, cfg.Name, noop), rolesync.ErrSyncInProgress)
	require.NoError(t, f.engine.Exclusive(realm, "otherMapper", noop))

	release()
	wg.Wait()

	require.NoError(t, f.engine.Exclusive(realm, cfg.Name, noop))
	assert.Equal(t, rolesync.StateCompleted, f.engine.State(realm, cfg.Name))
}

type crashingStore struct {
	*store.Store
}

func (crashingStore) GetOrCreateRole(context.Context, store.RoleKey) (models.Role, bool, error) {
	panic("driver crashed")
}

func TestRunReleasesMapperOnPanic(t *testing.T) {
	f := newFixture(t)
	engine := rolesync.New(crashingStore{f.roles}, f.dir.Adapter(), identity.NewDBResolver(f.db))
	cfg := config(mapper.Import)

	assert.Panics(t, func() {
		_, _ = engine.Run(context.Background(), cfg)
	})

	assert.Equal(t, rolesync.StateFailed, engine.State(realm, cfg.Name))
	require.NoError(t, engine.Exclusive(realm, cfg.Name, noop))

	_, err := engine.PushRoles(context.Background(), config(mapper.DirectoryOnly))
	require.NoError(t, err, "the mapper can be acquired again")
}

func TestExclusive(t *testing.T) {
	f := newFixture(t)
	cfg := config(mapper.Import)
	ctx := context.Background()

	err := f.engine.Exclusive(realm, cfg.Name, func() error {
		_, errRun := f.engine.Run(ctx, cfg)
		require.ErrorIs(t, errRun, rolesync.ErrSyncInProgress)

		_, errPush := f.engine.PushRoles(ctx, config(mapper.DirectoryOnly))
		require.ErrorIs(t, errPush, rolesync.ErrSyncInProgress)

		require.ErrorIs(t, f.engine.Exclusive(realm, cfg.Name, noop), rolesync.ErrSyncInProgress)
		require.NoError(t, f.engine.Exclusive(realm, "otherMapper", noop))

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, rolesync.StateIdle, f.engine.State(realm, cfg.Name), "holding a mapper is not a run")

	errFn := errors.New("write failed") //nolint:goerr113
	require.ErrorIs(t, f.engine.Exclusive(realm, cfg.Name, func() error { return errFn }), errFn)

	_, err = f.engine.Run(ctx, cfg)
	require.NoError(t, err)
}

func TestRegistryWaitsForRun(t *testing.T) {
	f := newFixture(t)
	reg := mapper.NewRegistry(f.db, f.engine)
	ctx := context.Background()

	cfg, err := reg.Save(ctx, config(mapper.Import))
	require.NoError(t, err)

	release := f.dir.Block()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, errRun := f.engine.Run(ctx, cfg)
		assert.NoError(t, errRun)
	}()

	require.Eventually(t, func() bool {
		return f.engine.State(realm, cfg.Name) == rolesync.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	changed := cfg
	changed.Mode = mapper.DirectoryOnly

	_, err = reg.Save(ctx, changed)
	require.ErrorIs(t, err, rolesync.ErrSyncInProgress)
	require.ErrorIs(t, reg.Delete(ctx, realm, cfg.Name), rolesync.ErrSyncInProgress)

	release()
	wg.Wait()

	_, err = reg.Save(ctx, changed)
	require.NoError(t, err)

	got, err := reg.Get(ctx, realm, cfg.Name)
	require.NoError(t, err)
	assert.Equal(t, mapper.DirectoryOnly, got.Mode)
}

func TestHistoryAndMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	f.dir.FailWith(ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))) //nolint:goerr113
	_, err = f.engine.Run(ctx, config(mapper.Import))
	require.Error(t, err)

	runs, err := f.history.Recent(ctx, realm, "realmRolesMapper", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, string(rolesync.StateFailed), runs[0].State, "newest first")
	assert.Contains(t, runs[0].Errors, "busy")
	assert.Equal(t, string(rolesync.StateCompleted), runs[1].State)
	assert.Equal(t, 2, runs[1].RolesCreated)
	assert.Equal(t, 1, runs[1].GrantsAdded)

	families, err := f.reg.Gather()
	require.NoError(t, err)

	runsByResult := map[string]float64{}

	for _, mf := range families {
		if mf.GetName() != "rolesync_runs_total" {
			continue
		}

		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" {
					runsByResult[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}

	assert.Equal(t, map[string]float64{"completed": 1, "failed": 1}, runsByResult)
}

func TestImportUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	finance := config(mapper.DirectoryOnly)
	finance.Name = "financeRolesMapper"
	finance.Target = mapper.Target{ClientID: "finance"}

	snap, err := mapper.NewSnapshot(realm, []mapper.Config{config(mapper.Import), finance})
	require.NoError(t, err)

	added, err := f.engine.ImportUser(ctx, snap, f.john)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"realmRole1"}, f.roleNames(t, f.john))

	added, err = f.engine.ImportUser(ctx, snap, f.john)
	require.NoError(t, err)
	assert.Zero(t, added)

	added, err = f.engine.ImportUser(ctx, snap, identity.UserRef{ID: 99, RealmID: realm, Username: "local"})
	require.NoError(t, err)
	assert.Zero(t, added, "local users have nothing to import")
}

func TestPushRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"realmRole1", "realmRole3"} {
		_, _, err := f.roles.GetOrCreateRole(ctx, store.RoleKey{RealmID: realm, Name: name})
		require.NoError(t, err)
	}

	res, err := f.engine.PushRoles(ctx, config(mapper.DirectoryOnly))
	require.NoError(t, err)
	assert.Equal(t, rolesync.PushResult{Created: 1, Existing: 1}, res)

	dn := "cn=realmRole3," + rolesDN
	require.True(t, f.dir.Exists(dn))
	assert.Equal(t, []string{directory.MembershipPlaceholder}, f.dir.Values(dn, "member"))

	writes := f.dir.Writes()

	_, err = f.engine.PushRoles(ctx, config(mapper.ReadOnly))
	require.Error(t, err)
	assert.Equal(t, writes, f.dir.Writes(), "read only mappers never write the directory")
}

func TestRemoveRoleObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Run(ctx, config(mapper.Import))
	require.NoError(t, err)

	writes := f.dir.Writes()

	_, err = f.engine.RemoveRoleObject(ctx, config(mapper.ReadOnly), "realmRole1")
	require.ErrorIs(t, err, mapping.ErrReadOnlyViolation)
	assert.Equal(t, writes, f.dir.Writes())

	dn, err := f.engine.RemoveRoleObject(ctx, config(mapper.DirectoryOnly), "realmRole1")
	require.NoError(t, err)
	assert.Equal(t, "cn=realmRole1,"+rolesDN, dn)
	assert.False(t, f.dir.Exists(dn))
	assert.Equal(t, []string{"realmRole1"}, f.roleNames(t, f.john), "local role and grant stay")

	_, err = f.engine.RemoveRoleObject(ctx, config(mapper.DirectoryOnly), "realmRole1")
	require.ErrorIs(t, err, directory.ErrObjectNotFound)
}

func TestScheduler(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	engine := rolesync.New(f.roles, f.dir.Adapter(), identity.NewDBResolver(f.db),
		rolesync.WithClock(func() time.Time { return now }))

	scheduled := config(mapper.Import)
	scheduled.SyncInterval = time.Hour

	manual := config(mapper.DirectoryOnly)
	manual.Name = "manualMapper"
	manual.Target = mapper.Target{ClientID: "finance"}

	reg := mapper.NewRegistry(f.db, engine)
	ctx := context.Background()

	_, err := reg.Save(ctx, scheduled)
	require.NoError(t, err)
	_, err = reg.Save(ctx, manual)
	require.NoError(t, err)

	s := rolesync.NewScheduler(engine, reg, time.Minute)

	assert.Equal(t, 1, s.RunDue(ctx), "only mappers with an interval are scheduled")
	assert.Equal(t, []string{"realmRole1"}, f.roleNames(t, f.john))

	now = now.Add(30 * time.Minute)
	assert.Zero(t, s.RunDue(ctx), "not due yet")

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, s.RunDue(ctx))
}
