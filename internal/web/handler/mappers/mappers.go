// Package mappers exposes the role mappers of a realm, their synchronization
// and its history.
package mappers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web/handler"
)

const (
	// Path is the path of the mappers of one realm.
	Path = handler.RealmPath + "/mappers"

	defaultRunLimit = 20
	maxRunLimit     = 200
)

// Mapper is a mapper as rendered to clients.
type Mapper struct {
	Name             string `json:"name"`
	Target           string `json:"target"`
	Mode             string `json:"mode"`
	RolesDN          string `json:"roles_dn"`
	RetrieveStrategy string `json:"retrieve_strategy"`
	SyncInterval     string `json:"sync_interval,omitempty"`
}

// SyncResponse is the outcome of a triggered synchronization.
type SyncResponse struct {
	Realm         string        `json:"realm"`
	Mapper        string        `json:"mapper"`
	State         string        `json:"state"`
	Duration      time.Duration `json:"duration_ns"`
	RolesCreated  int           `json:"roles_created"`
	RolesExisting int           `json:"roles_existing"`
	GrantsAdded   int           `json:"grants_added"`
	Failures      []string      `json:"failures,omitempty"`
}

// PushResponse counts the roles handled by a push.
type PushResponse struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// Run is one recorded synchronization.
type Run struct {
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	RolesCreated  int       `json:"roles_created"`
	RolesExisting int       `json:"roles_existing"`
	GrantsAdded   int       `json:"grants_added"`
	Failures      int       `json:"failures"`
	Errors        []string  `json:"errors,omitempty"`
}

// Service is the mapper handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps *handler.Deps
}

// Init registers the mapper routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || !deps.Valid() {
		return handler.ErrMissingDependency
	}

	s.cfg = cfg
	s.deps = deps

	app.Get(Path, s.List)
	app.Post(Path+"/:mapper/sync", s.Sync)
	app.Post(Path+"/:mapper/push", s.Push)
	app.Delete(Path+"/:mapper/roles/:role", s.RemoveRole)
	app.Get(Path+"/:mapper/runs", s.Runs)

	return nil
}

func (s *Service) mapper(c fiber.Ctx) (*mapper.Snapshot, mapper.Config, error) {
	snap, err := s.deps.Mappers.Snapshot(c.Context(), c.Params("realm"))
	if err != nil {
		return nil, mapper.Config{}, err
	}

	cfg, err := snap.Mapper(c.Params("mapper"))
	if err != nil {
		return nil, mapper.Config{}, err
	}

	return snap, cfg, nil
}

// List returns the mappers of the realm ordered by name.
func (s *Service) List(c fiber.Ctx) error {
	snap, err := s.deps.Mappers.Snapshot(c.Context(), c.Params("realm"))
	if err != nil {
		return err
	}

	cfgs := snap.Mappers()
	out := make([]Mapper, 0, len(cfgs))

	for _, m := range cfgs {
		item := Mapper{
			Name:             m.Name,
			Target:           m.Target.String(),
			Mode:             string(m.Mode),
			RolesDN:          m.RolesDN,
			RetrieveStrategy: string(m.RetrieveStrategy),
		}
		if m.SyncInterval > 0 {
			item.SyncInterval = m.SyncInterval.String()
		}

		out = append(out, item)
	}

	return c.JSON(out)
}

// Sync runs a synchronization of the mapper and waits for it. A run with
// failed objects still answers 200 and lists them.
func (s *Service) Sync(c fiber.Ctx) error {
	snap, cfg, err := s.mapper(c)
	if err != nil {
		return err
	}

	res, err := s.deps.Dispatcher.TriggerSync(c.Context(), snap, cfg.Name)
	if err != nil && !rolesync.IsPartial(err) {
		return err
	}

	out := SyncResponse{
		Realm:         res.RealmID,
		Mapper:        res.Mapper,
		State:         string(res.State),
		Duration:      res.FinishedAt.Sub(res.StartedAt),
		RolesCreated:  res.RolesCreated,
		RolesExisting: res.RolesExisting,
		GrantsAdded:   res.GrantsAdded,
	}

	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.String())
	}

	return c.JSON(out)
}

// Push creates the local roles of the mapper's target set in the directory.
func (s *Service) Push(c fiber.Ctx) error {
	_, cfg, err := s.mapper(c)
	if err != nil {
		return err
	}

	res, err := s.deps.Pusher.PushRoles(c.Context(), cfg)
	if err != nil {
		return err
	}

	return c.JSON(PushResponse{Created: res.Created, Existing: res.Existing})
}

// RemoveRole deletes the directory object of a role of the mapper. Local
// roles and grants are not touched.
func (s *Service) RemoveRole(c fiber.Ctx) error {
	_, cfg, err := s.mapper(c)
	if err != nil {
		return err
	}

	if _, err = s.deps.Pusher.RemoveRoleObject(c.Context(), cfg, c.Params("role")); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Runs returns the latest recorded runs of the mapper, newest first. The
// limit query parameter caps the number of runs.
func (s *Service) Runs(c fiber.Ctx) error {
	_, cfg, err := s.mapper(c)
	if err != nil {
		return err
	}

	limit := defaultRunLimit

	if q := c.Query("limit"); q != "" {
		n, errConv := strconv.Atoi(q)
		if errConv != nil || n < 1 || n > maxRunLimit {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxRunLimit))
		}

		limit = n
	}

	runs, err := s.deps.Runs.Recent(c.Context(), cfg.RealmID, cfg.Name, limit)
	if err != nil {
		return err
	}

	out := make([]Run, 0, len(runs))

	for _, r := range runs {
		run := Run{
			State:         r.State,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
			RolesCreated:  r.RolesCreated,
			RolesExisting: r.RolesExisting,
			GrantsAdded:   r.GrantsAdded,
			Failures:      r.Failures,
		}
		if r.Errors != "" {
			run.Errors = strings.Split(r.Errors, "\n")
		}

		out = append(out, run)
	}

	return c.JSON(out)
}
