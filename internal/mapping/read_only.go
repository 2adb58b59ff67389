package mapping

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

// readOnlyStrategy merges directory memberships with local grants and only
// ever writes locally.
type readOnlyStrategy struct {
	base
}

func (s *readOnlyStrategy) Mode() mapper.Mode { return mapper.ReadOnly }

func (s *readOnlyStrategy) Facts(ctx context.Context, user identity.UserRef) ([]Fact, error) {
	fromDirectory, err := s.directoryFacts(ctx, user)
	if err != nil {
		return nil, err
	}

	local, err := s.localFacts(ctx, user)
	if err != nil {
		return nil, err
	}

	return append(fromDirectory, local...), nil
}

func (s *readOnlyStrategy) Read(ctx context.Context, user identity.UserRef) ([]models.Role, error) {
	facts, err := s.Facts(ctx, user)
	if err != nil {
		return nil, err
	}

	return Roles(facts), nil
}

func (s *readOnlyStrategy) Grant(ctx context.Context, user identity.UserRef, roleName string) error {
	return s.grantLocal(ctx, user, roleName)
}

// Revoke removes a local grant. It refuses roles the directory grants, even
// when they are granted locally as well, because the next read would show
// them again.
func (s *readOnlyStrategy) Revoke(ctx context.Context, user identity.UserRef, roleName string) error {
	names, err := s.members.RoleNames(ctx, user)
	if err != nil {
		return err
	}

	if slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, roleName) }) {
		return fmt.Errorf("%w: %s for %s", ErrReadOnlyViolation, roleName, user)
	}

	return s.revokeLocal(ctx, user, roleName)
}
