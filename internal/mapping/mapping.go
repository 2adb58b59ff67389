// Package mapping implements the mapping mode strategies. Each strategy
// answers read, grant and revoke for the roles of one mapper's target set,
// and commits a write to exactly one store.
package mapping

import (
	"context"
	"fmt"
	"iter"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

// RoleStore is the local role store as used by the strategies.
type RoleStore interface {
	GetOrCreateRole(ctx context.Context, key store.RoleKey) (models.Role, bool, error)
	FindRole(ctx context.Context, key store.RoleKey) (models.Role, error)
	Grant(ctx context.Context, userID uint64, roleID uint) (bool, error)
	Revoke(ctx context.Context, userID uint64, roleID uint) error
	ListRoles(ctx context.Context, userID uint64) ([]models.Role, error)
}

// Directory is the directory adapter as used by the strategies.
type Directory interface {
	LoadObjectByIdentifier(ctx context.Context, dn string) (directory.ExternalObject, error)
	SearchByFilter(ctx context.Context, baseDN, filter string, attributes ...string) iter.Seq2[directory.ExternalObject, error]
	AddAttributeValue(ctx context.Context, obj directory.ExternalObject, attr, value string) error
	RemoveAttributeValue(ctx context.Context, obj directory.ExternalObject, attr, value string) error
	CreateObject(ctx context.Context, obj directory.ExternalObject) error
	DeleteObject(ctx context.Context, dn string) error
}

// Origin tells which store a mapping fact was observed in.
type Origin int

// Origins.
const (
	OriginLocal Origin = iota
	OriginDirectory
)

// String returns "local" or "directory".
func (o Origin) String() string {
	if o == OriginDirectory {
		return "directory"
	}

	return "local"
}

// MarshalText implements encoding.TextMarshaler.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Origin) UnmarshalText(text []byte) error {
	switch string(text) {
	case "local":
		*o = OriginLocal
	case "directory":
		*o = OriginDirectory
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOrigin, text)
	}

	return nil
}

// Fact is the observation that User holds Role in the store named by Origin.
// Facts are computed per query and never stored.
type Fact struct {
	User   identity.UserRef
	Role   models.Role
	Origin Origin
}

// Strategy is the mapping contract shared by all modes.
type Strategy interface {
	// Mode returns the mode the strategy implements.
	Mode() mapper.Mode
	// Read returns the roles of the target set user holds, each once.
	Read(ctx context.Context, user identity.UserRef) ([]models.Role, error)
	// Facts returns what Read is computed from, one fact per role and store.
	Facts(ctx context.Context, user identity.UserRef) ([]Fact, error)
	// Grant gives user the role called roleName.
	Grant(ctx context.Context, user identity.UserRef, roleName string) error
	// Revoke takes the role called roleName from user.
	Revoke(ctx context.Context, user identity.UserRef, roleName string) error
}

// New returns the strategy for cfg.Mode.
func New(cfg mapper.Config, roles RoleStore, dir Directory) (Strategy, error) {
	b := base{cfg: cfg, roles: roles, members: NewMemberships(cfg, dir)}

	switch cfg.Mode {
	case mapper.Import:
		return &importStrategy{base: b}, nil
	case mapper.DirectoryOnly:
		return &directoryOnlyStrategy{base: b, dir: dir}, nil
	case mapper.ReadOnly:
		return &readOnlyStrategy{base: b}, nil
	}

	return nil, fmt.Errorf("%w %q for mapper %s", ErrUnknownMode, cfg.Mode, cfg.Name)
}

// base holds what every strategy needs.
type base struct {
	cfg     mapper.Config
	roles   RoleStore
	members Memberships
}

func (b base) key(user identity.UserRef, roleName string) store.RoleKey {
	return store.RoleKey{RealmID: user.RealmID, ClientID: b.cfg.Target.ClientID, Name: roleName}
}

// localFacts returns the local grants of user within the target set.
func (b base) localFacts(ctx context.Context, user identity.UserRef) ([]Fact, error) {
	granted, err := b.roles.ListRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var facts []Fact

	for _, role := range granted {
		if role.RealmID == user.RealmID && b.cfg.Target.Contains(role) {
			facts = append(facts, Fact{User: user, Role: role, Origin: OriginLocal})
		}
	}

	return facts, nil
}

// directoryFacts returns the directory memberships of user, each mapped to a
// local role record. Role records missing locally are created and kept.
func (b base) directoryFacts(ctx context.Context, user identity.UserRef) ([]Fact, error) {
	names, err := b.members.RoleNames(ctx, user)
	if err != nil {
		return nil, err
	}

	facts := make([]Fact, 0, len(names))

	for _, name := range names {
		role, _, errRole := b.roles.GetOrCreateRole(ctx, b.key(user, name))
		if errRole != nil {
			return nil, errRole
		}

		facts = append(facts, Fact{User: user, Role: role, Origin: OriginDirectory})
	}

	return facts, nil
}

func (b base) grantLocal(ctx context.Context, user identity.UserRef, roleName string) error {
	role, err := b.roles.FindRole(ctx, b.key(user, roleName))
	if err != nil {
		return err
	}

	_, err = b.roles.Grant(ctx, user.ID, role.ID)

	return err
}

func (b base) revokeLocal(ctx context.Context, user identity.UserRef, roleName string) error {
	role, err := b.roles.FindRole(ctx, b.key(user, roleName))
	if err != nil {
		return err
	}

	return b.roles.Revoke(ctx, user.ID, role.ID)
}

// Roles returns the distinct roles of facts in order of first appearance.
func Roles(facts []Fact) []models.Role {
	seen := make(map[uint]struct{}, len(facts))
	out := make([]models.Role, 0, len(facts))

	for _, f := range facts {
		if _, ok := seen[f.Role.ID]; ok {
			continue
		}

		seen[f.Role.ID] = struct{}{}
		out = append(out, f.Role)
	}

	return out
}
