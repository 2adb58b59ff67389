// Package rolesync implements the synchronization engine: it walks the role
// objects of a mapper in the directory and materializes them as local roles,
// and, for import mappers, their memberships as local grants.
//
// Synchronization never deletes a local role or grant. A run is single flight
// per realm and mapper, idempotent, and keeps going past individual failures.
package rolesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/logger"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

// component tags the engine's log events.
const component = "rolesync"

// State of a mapper's synchronization.
type State string

// States. A mapper that never ran is Idle.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// RoleStore is the local role store as used by the engine.
type RoleStore interface {
	GetOrCreateRole(ctx context.Context, key store.RoleKey) (models.Role, bool, error)
	Grant(ctx context.Context, userID uint64, roleID uint) (bool, error)
	ListScopeRoles(ctx context.Context, realmID, clientID string) ([]models.Role, error)
}

// Result describes one run.
type Result struct {
	RealmID       string
	Mapper        string
	State         State
	StartedAt     time.Time
	FinishedAt    time.Time
	RolesCreated  int
	RolesExisting int
	GrantsAdded   int
	Failures      []Failure
	// Err is the error that made the run fail.
	Err error
}

type key struct {
	realmID string
	mapper  string
}

// Engine runs synchronizations.
type Engine struct {
	roles   RoleStore
	dir     mapping.Directory
	users   identity.Resolver
	history *History
	metrics *metrics
	now     func() time.Time

	mu     sync.Mutex
	states map[key]State
	// held marks mappers owned by a run, a push or Exclusive.
	held map[key]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory records every run in h.
func WithHistory(h *History) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = newMetrics(reg)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine.
func New(roles RoleStore, dir mapping.Directory, users identity.Resolver, opts ...Option) *Engine {
	e := &Engine{
		roles:  roles,
		dir:    dir,
		users:  users,
		now:    time.Now,
		states: make(map[key]State),
		held:   make(map[key]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = newMetrics(nil)
	}

	return e
}

// State returns the state of the last or current run of a mapper.
func (e *Engine) State(realmID, mapperName string) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.states[key{realmID, mapperName}]; ok {
		return s
	}

	return StateIdle
}

// Exclusive runs fn while holding the mapper, so no run or push of it starts
// until fn returns. It fails with ErrSyncInProgress if the mapper is held.
// The mapper registry wraps configuration changes in it.
func (e *Engine) Exclusive(realmID, mapperName string, fn func() error) error {
	k := key{realmID, mapperName}

	e.mu.Lock()
	if err := e.checkIdle(k); err != nil {
		e.mu.Unlock()
		return err
	}

	e.held[k] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.held, k)
		e.mu.Unlock()
	}()

	return fn()
}

// checkIdle expects e.mu to be held.
func (e *Engine) checkIdle(k key) error {
	if _, ok := e.held[k]; ok {
		return fmt.Errorf("%w: %s/%s", ErrSyncInProgress, k.realmID, k.mapper)
	}

	return nil
}

func (e *Engine) acquire(k key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkIdle(k); err != nil {
		return err
	}

	e.held[k] = struct{}{}
	e.states[k] = StateRunning

	return nil
}

func (e *Engine) release(k key, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.held, k)
	e.states[k] = s
}

// mapperLogger returns the engine logger tagged with the mapper of cfg.
func mapperLogger(cfg mapper.Config) *zerolog.Logger {
	l := logger.Component(component).With().Str("realm", cfg.RealmID).Str("mapper", cfg.Name).Logger()

	return &l
}

// Run synchronizes the mapper cfg. A second Run for the same mapper while one
// is running fails with ErrSyncInProgress. When some objects or memberships
// fail, the run still completes and the error is a *PartialSyncFailure.
func (e *Engine) Run(ctx context.Context, cfg mapper.Config) (Result, error) {
	k := key{cfg.RealmID, cfg.Name}
	if err := e.acquire(k); err != nil {
		return Result{RealmID: cfg.RealmID, Mapper: cfg.Name, State: StateRunning}, err
	}

	// a panic below leaves the mapper failed, not running
	state := StateFailed
	defer func() { e.release(k, state) }()

	res := Result{RealmID: cfg.RealmID, Mapper: cfg.Name, State: StateRunning, StartedAt: e.now()}

	runLog := mapperLogger(cfg)
	runLog.Info().Str("mode", string(cfg.Mode)).Msg("synchronization started")

	res.Err = e.walk(ctx, cfg, &res)

	res.FinishedAt = e.now()
	if res.Err != nil {
		res.State = StateFailed
	} else {
		res.State = StateCompleted
	}

	state = res.State
	e.metrics.observe(res)

	if e.history != nil {
		if err := e.history.Record(context.WithoutCancel(ctx), res); err != nil {
			runLog.Error().Err(err).Msg("can't record synchronization run")
		}
	}

	event := runLog.Info()
	if res.State == StateFailed {
		event = runLog.Error().Err(res.Err)
	}

	event.
		Int("roles_created", res.RolesCreated).
		Int("roles_existing", res.RolesExisting).
		Int("grants_added", res.GrantsAdded).
		Int("failures", len(res.Failures)).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("synchronization finished")

	switch {
	case res.Err != nil:
		return res, res.Err
	case len(res.Failures) > 0:
		return res, &PartialSyncFailure{RealmID: res.RealmID, Mapper: res.Mapper, Failures: res.Failures}
	default:
		return res, nil
	}
}

// walk enumerates the role objects. Only an enumeration error or
// cancellation ends it early; partial work stays.
func (e *Engine) walk(ctx context.Context, cfg mapper.Config, res *Result) error {
	members := mapping.NewMemberships(cfg, e.dir)

	for obj, err := range members.Roles(ctx) {
		if err != nil {
			return err
		}

		if errCtx := ctx.Err(); errCtx != nil {
			return errCtx
		}

		name := obj.Value(cfg.RoleNameAttribute)
		if name == "" {
			res.Failures = append(res.Failures, Failure{Object: obj.DN, Err: ErrMissingRoleName})
			continue
		}

		role, created, errRole := e.roles.GetOrCreateRole(ctx, store.RoleKey{
			RealmID:  cfg.RealmID,
			ClientID: cfg.Target.ClientID,
			Name:     name,
		})
		if errRole != nil {
			res.Failures = append(res.Failures, Failure{Object: obj.DN, Err: errRole})
			continue
		}

		if created {
			res.RolesCreated++
		} else {
			res.RolesExisting++
		}

		// only import mappers keep memberships locally
		if cfg.Mode != mapper.Import {
			continue
		}

		for _, member := range obj.Members(cfg.MembershipAttribute) {
			granted, errGrant := e.grantMember(ctx, cfg, role, member)
			if errGrant != nil {
				res.Failures = append(res.Failures, Failure{Object: member, Err: fmt.Errorf("role %s: %w", name, errGrant)})
				continue
			}

			if granted {
				res.GrantsAdded++
			}
		}
	}

	return nil
}

func (e *Engine) grantMember(ctx context.Context, cfg mapper.Config, role models.Role, member string) (bool, error) {
	user, err := e.resolve(ctx, cfg, member)
	if err != nil {
		return false, err
	}

	return e.roles.Grant(ctx, user.ID, role.ID)
}

// resolve maps a membership value to a local user.
func (e *Engine) resolve(ctx context.Context, cfg mapper.Config, member string) (identity.UserRef, error) {
	if cfg.MembershipAttributeType == mapper.MembershipUID {
		return e.users.ByUsername(ctx, cfg.RealmID, member)
	}

	return e.users.ByExternalID(ctx, cfg.RealmID, member)
}

// IsPartial reports whether err is a *PartialSyncFailure.
func IsPartial(err error) bool {
	var p *PartialSyncFailure

	return errors.As(err, &p)
}
