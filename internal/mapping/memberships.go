package mapping

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

// Memberships reads the directory side of one mapper.
type Memberships struct {
	cfg mapper.Config
	dir Directory
}

// NewMemberships creates a membership reader for cfg.
func NewMemberships(cfg mapper.Config, dir Directory) Memberships {
	return Memberships{cfg: cfg, dir: dir}
}

// RoleNames returns the names of the directory roles user is a member of.
// Users without a directory counterpart have none.
func (m Memberships) RoleNames(ctx context.Context, user identity.UserRef) ([]string, error) {
	if !user.Federated() {
		return nil, nil
	}

	if m.cfg.RetrieveStrategy == mapper.ByMemberOf {
		return m.namesFromMemberOf(ctx, user)
	}

	filter := m.cfg.MemberFilter(m.cfg.MemberValue(user.ExternalID))

	var names []string

	for obj, err := range m.dir.SearchByFilter(ctx, m.cfg.RolesDN, filter, m.cfg.RoleNameAttribute) {
		if err != nil {
			return nil, err
		}

		names = appendName(names, obj.Value(m.cfg.RoleNameAttribute))
	}

	return names, nil
}

// namesFromMemberOf takes the role names from the RDNs of the user's memberOf
// values that live under the roles DN.
func (m Memberships) namesFromMemberOf(ctx context.Context, user identity.UserRef) ([]string, error) {
	obj, err := m.dir.LoadObjectByIdentifier(ctx, user.ExternalID)
	if errors.Is(err, directory.ErrObjectNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var names []string

	for _, groupDN := range obj.Values(m.cfg.MemberOfAttribute) {
		if !m.cfg.UnderRolesDN(groupDN) {
			continue
		}

		dn, errParse := ldap.ParseDN(groupDN)
		if errParse != nil || len(dn.RDNs) == 0 {
			continue
		}

		for _, attr := range dn.RDNs[0].Attributes {
			if strings.EqualFold(attr.Type, m.cfg.RoleNameAttribute) {
				names = appendName(names, attr.Value)
			}
		}
	}

	return names, nil
}

// RoleObject loads the directory object of the role called name.
func (m Memberships) RoleObject(ctx context.Context, name string) (directory.ExternalObject, error) {
	for obj, err := range m.dir.SearchByFilter(ctx, m.cfg.RolesDN, m.cfg.NameFilter(name)) {
		if err != nil {
			return directory.ExternalObject{}, err
		}

		return obj, nil
	}

	return directory.ExternalObject{}, fmt.Errorf("%w: role %s under %s", directory.ErrObjectNotFound, name, m.cfg.RolesDN)
}

// Roles enumerates every role object of the mapper.
func (m Memberships) Roles(ctx context.Context) iter.Seq2[directory.ExternalObject, error] {
	return m.dir.SearchByFilter(ctx, m.cfg.RolesDN, m.cfg.RoleFilter())
}

func appendName(names []string, name string) []string {
	if name == "" {
		return names
	}

	if slices.Contains(names, name) {
		return names
	}

	return append(names, name)
}
