// Package federation is the facade callers use to read and change role
// mappings. It routes every role to the mapper owning its scope, or to the
// local store when no mapper owns it, and merges the per-mapper views.
package federation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

// ErrRealmMismatch is returned when the user and the mapper snapshot belong to
// different realms.
var ErrRealmMismatch = errors.New("user and mappers belong to different realms")

// RoleRef names a role of the user's realm. An empty ClientID denotes a realm role.
type RoleRef struct {
	ClientID string
	Name     string
}

// EffectiveRole is a role a user holds together with the stores it was seen in.
type EffectiveRole struct {
	Role    models.Role
	Origins []mapping.Origin
}

// Syncer runs a synchronization of one mapper and imports single users.
type Syncer interface {
	Run(ctx context.Context, cfg mapper.Config) (rolesync.Result, error)
	ImportUser(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef) (int, error)
}

// Dispatcher implements the role mapping API.
type Dispatcher struct {
	roles  mapping.RoleStore
	dir    mapping.Directory
	syncer Syncer
}

// New creates a dispatcher.
func New(roles mapping.RoleStore, dir mapping.Directory, syncer Syncer) *Dispatcher {
	return &Dispatcher{roles: roles, dir: dir, syncer: syncer}
}

func checkRealm(snap *mapper.Snapshot, user identity.UserRef) error {
	if snap.RealmID() != user.RealmID {
		return fmt.Errorf("%w: %s and %s", ErrRealmMismatch, user, snap.RealmID())
	}

	return nil
}

// EffectiveFacts returns the facts of every mapper of snap plus the local
// grants of roles no mapper owns.
func (d *Dispatcher) EffectiveFacts(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef) ([]mapping.Fact, error) {
	if err := checkRealm(snap, user); err != nil {
		return nil, err
	}

	var facts []mapping.Fact

	for _, cfg := range snap.Mappers() {
		s, err := mapping.New(cfg, d.roles, d.dir)
		if err != nil {
			return nil, err
		}

		mapped, err := s.Facts(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("mapper %s: %w", cfg.Name, err)
		}

		facts = append(facts, mapped...)
	}

	local, err := d.roles.ListRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	for _, role := range local {
		if role.RealmID != user.RealmID {
			continue
		}

		if _, owned := snap.Owner(role.ClientID); owned {
			continue
		}

		facts = append(facts, mapping.Fact{User: user, Role: role, Origin: mapping.OriginLocal})
	}

	return facts, nil
}

// ListEffectiveRoles returns every role user holds, each once.
func (d *Dispatcher) ListEffectiveRoles(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef) ([]models.Role, error) {
	facts, err := d.EffectiveFacts(ctx, snap, user)
	if err != nil {
		return nil, err
	}

	return mapping.Roles(facts), nil
}

// EffectiveRoles is ListEffectiveRoles with the origins of every role.
func (d *Dispatcher) EffectiveRoles(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef) ([]EffectiveRole, error) {
	facts, err := d.EffectiveFacts(ctx, snap, user)
	if err != nil {
		return nil, err
	}

	index := make(map[uint]int, len(facts))

	var out []EffectiveRole

	for _, f := range facts {
		i, ok := index[f.Role.ID]
		if !ok {
			index[f.Role.ID] = len(out)
			out = append(out, EffectiveRole{Role: f.Role, Origins: []mapping.Origin{f.Origin}})

			continue
		}

		if !slices.Contains(out[i].Origins, f.Origin) {
			out[i].Origins = append(out[i].Origins, f.Origin)
		}
	}

	return out, nil
}

// GrantRole grants ref to user through the mapper owning ref, or locally.
func (d *Dispatcher) GrantRole(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef, ref RoleRef) error {
	if err := checkRealm(snap, user); err != nil {
		return err
	}

	if cfg, owned := snap.Owner(ref.ClientID); owned {
		s, err := mapping.New(cfg, d.roles, d.dir)
		if err != nil {
			return err
		}

		return s.Grant(ctx, user, ref.Name)
	}

	role, err := d.roles.FindRole(ctx, d.key(user, ref))
	if err != nil {
		return err
	}

	_, err = d.roles.Grant(ctx, user.ID, role.ID)

	return err
}

// RevokeRole revokes ref from user through the mapper owning ref, or locally.
// Strategy errors such as mapping.ErrReadOnlyViolation come back unchanged.
func (d *Dispatcher) RevokeRole(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef, ref RoleRef) error {
	if err := checkRealm(snap, user); err != nil {
		return err
	}

	if cfg, owned := snap.Owner(ref.ClientID); owned {
		s, err := mapping.New(cfg, d.roles, d.dir)
		if err != nil {
			return err
		}

		return s.Revoke(ctx, user, ref.Name)
	}

	role, err := d.roles.FindRole(ctx, d.key(user, ref))
	if err != nil {
		return err
	}

	return d.roles.Revoke(ctx, user.ID, role.ID)
}

// TriggerSync synchronizes the mapper called mapperName.
func (d *Dispatcher) TriggerSync(ctx context.Context, snap *mapper.Snapshot, mapperName string) (rolesync.Result, error) {
	cfg, err := snap.Mapper(mapperName)
	if err != nil {
		return rolesync.Result{}, err
	}

	return d.syncer.Run(ctx, cfg)
}

// ImportUser copies the directory memberships of a federated user into local
// grants for every import mapper of snap, without synchronizing the whole
// mapper. It returns the number of grants added.
func (d *Dispatcher) ImportUser(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef) (int, error) {
	if err := checkRealm(snap, user); err != nil {
		return 0, err
	}

	return d.syncer.ImportUser(ctx, snap, user)
}

func (d *Dispatcher) key(user identity.UserRef, ref RoleRef) store.RoleKey {
	return store.RoleKey{RealmID: user.RealmID, ClientID: ref.ClientID, Name: ref.Name}
}
