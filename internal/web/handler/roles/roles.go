// Package roles serves the effective roles of a user and accepts grants and
// revocations, routed through the federated dispatcher.
package roles

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/federation"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web/handler"
)

const (
	// Path is the path of the role mappings of one user.
	Path = handler.RealmPath + "/users/:username/roles"

	// ImportPath copies the directory roles of a federated user into local grants.
	ImportPath = handler.RealmPath + "/users/:username/import"
)

// Role is one effective role as rendered to clients.
type Role struct {
	ID      uint             `json:"id"`
	Client  string           `json:"client,omitempty"`
	Name    string           `json:"name"`
	Origins []mapping.Origin `json:"origins"`
}

// Response lists the effective roles of a user.
type Response struct {
	Realm    string `json:"realm"`
	Username string `json:"username"`
	Roles    []Role `json:"roles"`
}

// GrantRequest is the body of a grant.
type GrantRequest struct {
	Role   string `json:"role" validate:"required"`
	Client string `json:"client"`
}

// ImportResponse reports the grants added by an import.
type ImportResponse struct {
	Realm       string `json:"realm"`
	Username    string `json:"username"`
	GrantsAdded int    `json:"grants_added"`
}

// Service is the role mapping handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps *handler.Deps
}

// Init registers the role mapping routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || !deps.Valid() {
		return handler.ErrMissingDependency
	}

	s.cfg = cfg
	s.deps = deps

	app.Get(Path, s.List)
	app.Post(Path, s.Grant)
	app.Delete(Path+"/:role", s.Revoke)
	app.Post(ImportPath, s.Import)

	return nil
}

// resolve loads the user and the mapper snapshot named by the route.
func (s *Service) resolve(c fiber.Ctx) (identity.UserRef, *mapper.Snapshot, error) {
	realmID := c.Params("realm")

	user, err := s.deps.Users.ByUsername(c.Context(), realmID, c.Params("username"))
	if err != nil {
		return identity.UserRef{}, nil, err
	}

	snap, err := s.deps.Mappers.Snapshot(c.Context(), realmID)
	if err != nil {
		return identity.UserRef{}, nil, err
	}

	return user, snap, nil
}

// List returns the effective roles of the user with their origins.
func (s *Service) List(c fiber.Ctx) error {
	user, snap, err := s.resolve(c)
	if err != nil {
		return err
	}

	effective, err := s.deps.Dispatcher.EffectiveRoles(c.Context(), snap, user)
	if err != nil {
		return err
	}

	res := Response{Realm: user.RealmID, Username: user.Username, Roles: make([]Role, 0, len(effective))}
	for _, e := range effective {
		res.Roles = append(res.Roles, Role{
			ID:      e.Role.ID,
			Client:  e.Role.ClientID,
			Name:    e.Role.Name,
			Origins: e.Origins,
		})
	}

	return c.JSON(res)
}

// Grant grants the role named in the body.
func (s *Service) Grant(c fiber.Ctx) error {
	var req GrantRequest

	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	user, snap, err := s.resolve(c)
	if err != nil {
		return err
	}

	ref := federation.RoleRef{ClientID: req.Client, Name: req.Role}
	if err = s.deps.Dispatcher.GrantRole(c.Context(), snap, user, ref); err != nil {
		return err
	}

	log.Info().
		Str("user", user.String()).
		Str("client", ref.ClientID).
		Str("role", ref.Name).
		Msg("role granted")

	return c.SendStatus(fiber.StatusNoContent)
}

// Revoke revokes the role named in the route. The client is taken from the
// client query parameter.
func (s *Service) Revoke(c fiber.Ctx) error {
	user, snap, err := s.resolve(c)
	if err != nil {
		return err
	}

	ref := federation.RoleRef{ClientID: c.Query("client"), Name: c.Params("role")}
	if err = s.deps.Dispatcher.RevokeRole(c.Context(), snap, user, ref); err != nil {
		return err
	}

	log.Info().
		Str("user", user.String()).
		Str("client", ref.ClientID).
		Str("role", ref.Name).
		Msg("role revoked")

	return c.SendStatus(fiber.StatusNoContent)
}

// Import copies the directory memberships of the user into local grants for
// every import mapper of the realm.
func (s *Service) Import(c fiber.Ctx) error {
	user, snap, err := s.resolve(c)
	if err != nil {
		return err
	}

	added, err := s.deps.Dispatcher.ImportUser(c.Context(), snap, user)
	if err != nil {
		return err
	}

	log.Info().
		Str("user", user.String()).
		Int("grants_added", added).
		Msg("user roles imported")

	return c.JSON(ImportResponse{Realm: user.RealmID, Username: user.Username, GrantsAdded: added})
}
