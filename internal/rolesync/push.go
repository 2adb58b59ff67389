package rolesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
)

// PushResult counts the roles handled by PushRoles.
type PushResult struct {
	Created  int
	Existing int
}

// PushRoles creates a directory role object for every local role of the
// mapper's target set the directory does not have. Memberships are not
// pushed. Read only mappers never write the directory.
func (e *Engine) PushRoles(ctx context.Context, cfg mapper.Config) (PushResult, error) {
	if cfg.Mode == mapper.ReadOnly {
		return PushResult{}, fmt.Errorf("%w: mapper %s is read only", mapping.ErrReadOnlyViolation, cfg.Name)
	}

	k := key{cfg.RealmID, cfg.Name}
	if err := e.acquire(k); err != nil {
		return PushResult{}, err
	}

	state := StateFailed
	defer func() { e.release(k, state) }()

	res, err := e.push(ctx, cfg)
	if err == nil {
		state = StateCompleted
	}

	return res, err
}

func (e *Engine) push(ctx context.Context, cfg mapper.Config) (PushResult, error) {
	var res PushResult

	roles, err := e.roles.ListScopeRoles(ctx, cfg.RealmID, cfg.Target.ClientID)
	if err != nil {
		return res, err
	}

	members := mapping.NewMemberships(cfg, e.dir)

	for _, role := range roles {
		if errCtx := ctx.Err(); errCtx != nil {
			return res, errCtx
		}

		_, errObj := members.RoleObject(ctx, role.Name)
		if errObj == nil {
			res.Existing++
			continue
		}

		if !errors.Is(errObj, directory.ErrObjectNotFound) {
			return res, errObj
		}

		obj := directory.ExternalObject{
			DN:            cfg.RoleDN(role.Name),
			ObjectClasses: cfg.RoleObjectClasses,
			Attributes:    map[string][]string{cfg.RoleNameAttribute: {role.Name}},
		}

		if directory.RequiresPlaceholder(cfg.MembershipAttribute) {
			obj.Attributes[cfg.MembershipAttribute] = []string{directory.MembershipPlaceholder}
		}

		if errCreate := e.dir.CreateObject(ctx, obj); errCreate != nil && !errors.Is(errCreate, directory.ErrObjectExists) {
			return res, errCreate
		}

		mapperLogger(cfg).Info().Str("role", role.Name).Msg("role pushed to directory")

		res.Created++
	}

	return res, nil
}

// RemoveRoleObject deletes the directory object of the role called roleName
// and returns its DN. The local role and its grants stay. Read only mappers
// never write the directory.
func (e *Engine) RemoveRoleObject(ctx context.Context, cfg mapper.Config, roleName string) (string, error) {
	if cfg.Mode == mapper.ReadOnly {
		return "", fmt.Errorf("%w: mapper %s is read only", mapping.ErrReadOnlyViolation, cfg.Name)
	}

	var dn string

	err := e.Exclusive(cfg.RealmID, cfg.Name, func() error {
		obj, err := mapping.NewMemberships(cfg, e.dir).RoleObject(ctx, roleName)
		if err != nil {
			return err
		}

		if err = e.dir.DeleteObject(ctx, obj.DN); err != nil {
			return err
		}

		dn = obj.DN

		return nil
	})
	if err != nil {
		return "", err
	}

	mapperLogger(cfg).Info().Str("role", roleName).Str("dn", dn).Msg("role removed from directory")

	return dn, nil
}
