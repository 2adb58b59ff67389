package mapping

import (
	"context"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

// importStrategy serves everything from the local store. The directory is only
// read by synchronization.
type importStrategy struct {
	base
}

func (s *importStrategy) Mode() mapper.Mode { return mapper.Import }

func (s *importStrategy) Facts(ctx context.Context, user identity.UserRef) ([]Fact, error) {
	return s.localFacts(ctx, user)
}

func (s *importStrategy) Read(ctx context.Context, user identity.UserRef) ([]models.Role, error) {
	facts, err := s.Facts(ctx, user)
	if err != nil {
		return nil, err
	}

	return Roles(facts), nil
}

func (s *importStrategy) Grant(ctx context.Context, user identity.UserRef, roleName string) error {
	return s.grantLocal(ctx, user, roleName)
}

func (s *importStrategy) Revoke(ctx context.Context, user identity.UserRef, roleName string) error {
	return s.revokeLocal(ctx, user, roleName)
}
