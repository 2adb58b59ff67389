package rolesync

import (
	"context"
	"fmt"

	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

// ImportUser copies the directory memberships of one user into local grants
// for every import mapper of snap. It is meant to run when a federated user
// is first imported. Existing grants stay, and the number of new grants is
// returned.
func (e *Engine) ImportUser(ctx context.Context, snap *mapper.Snapshot, user identity.UserRef) (int, error) {
	if !user.Federated() {
		return 0, nil
	}

	added := 0

	for _, cfg := range snap.Mappers() {
		if cfg.Mode != mapper.Import {
			continue
		}

		names, err := mapping.NewMemberships(cfg, e.dir).RoleNames(ctx, user)
		if err != nil {
			return added, fmt.Errorf("import roles of %s from %s: %w", user, cfg.Name, err)
		}

		for _, name := range names {
			role, _, errRole := e.roles.GetOrCreateRole(ctx, store.RoleKey{
				RealmID:  cfg.RealmID,
				ClientID: cfg.Target.ClientID,
				Name:     name,
			})
			if errRole != nil {
				return added, errRole
			}

			granted, errGrant := e.roles.Grant(ctx, user.ID, role.ID)
			if errGrant != nil {
				return added, errGrant
			}

			if granted {
				added++
			}
		}
	}

	return added, nil
}
