package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

// directoryOnlyStrategy keeps memberships in the directory. It never writes
// local grant rows; it only registers role records on read.
type directoryOnlyStrategy struct {
	base
	dir Directory
}

func (s *directoryOnlyStrategy) Mode() mapper.Mode { return mapper.DirectoryOnly }

func (s *directoryOnlyStrategy) Facts(ctx context.Context, user identity.UserRef) ([]Fact, error) {
	return s.directoryFacts(ctx, user)
}

func (s *directoryOnlyStrategy) Read(ctx context.Context, user identity.UserRef) ([]models.Role, error) {
	facts, err := s.Facts(ctx, user)
	if err != nil {
		return nil, err
	}

	return Roles(facts), nil
}

// Grant adds the user to the role object, creating the object when the
// directory does not have it yet.
func (s *directoryOnlyStrategy) Grant(ctx context.Context, user identity.UserRef, roleName string) error {
	if !user.Federated() {
		return fmt.Errorf("%w: %s", ErrUserNotFederated, user)
	}

	value := s.cfg.MemberValue(user.ExternalID)

	obj, err := s.members.RoleObject(ctx, roleName)
	if errors.Is(err, directory.ErrObjectNotFound) {
		log.Info().
			Str("mapper", s.cfg.Name).
			Str("role", roleName).
			Msg("creating role in directory")

		return s.dir.CreateObject(ctx, directory.ExternalObject{
			DN:            s.cfg.RoleDN(roleName),
			ObjectClasses: s.cfg.RoleObjectClasses,
			Attributes: map[string][]string{
				s.cfg.RoleNameAttribute:   {roleName},
				s.cfg.MembershipAttribute: {value},
			},
		})
	}

	if err != nil {
		return err
	}

	return s.dir.AddAttributeValue(ctx, obj, s.cfg.MembershipAttribute, value)
}

// Revoke removes the user from the role object.
func (s *directoryOnlyStrategy) Revoke(ctx context.Context, user identity.UserRef, roleName string) error {
	if !user.Federated() {
		return fmt.Errorf("%w: %s", ErrUserNotFederated, user)
	}

	obj, err := s.members.RoleObject(ctx, roleName)
	if errors.Is(err, directory.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", store.ErrRoleNotFound, s.key(user, roleName))
	}

	if err != nil {
		return err
	}

	value := s.cfg.MemberValue(user.ExternalID)
	if !obj.HasValue(s.cfg.MembershipAttribute, value) {
		return fmt.Errorf("%w: %s in directory", store.ErrNotGranted, s.key(user, roleName))
	}

	return s.dir.RemoveAttributeValue(ctx, obj, s.cfg.MembershipAttribute, value)
}
