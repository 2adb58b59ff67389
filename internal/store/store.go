// Package store provides the local role store: roles scoped to a realm or a
// client of a realm, and the local grants of those roles to users.
//
// Every method runs in its own transaction. Nothing here talks to the directory.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
)

const scopeQuery = "realm_id = ? AND client_id = ?"

// RoleKey identifies a role. An empty ClientID denotes a realm role.
type RoleKey struct {
	RealmID  string
	ClientID string
	Name     string
}

// String renders the key as realm/name or realm/client/name.
func (k RoleKey) String() string {
	if k.ClientID != "" {
		return k.RealmID + "/" + k.ClientID + "/" + k.Name
	}

	return k.RealmID + "/" + k.Name
}

// KeyOf returns the key of r.
func KeyOf(r models.Role) RoleKey {
	return RoleKey{RealmID: r.RealmID, ClientID: r.ClientID, Name: r.Name}
}

// Store is the gorm backed local role store.
type Store struct {
	db *gorm.DB
}

// New creates a store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func byKey(tx *gorm.DB, key RoleKey) *gorm.DB {
	return tx.Where(scopeQuery+" AND name = ?", key.RealmID, key.ClientID, key.Name)
}

// GetOrCreateRole returns the role identified by key, creating it when absent.
// created reports whether this call inserted the row.
func (s *Store) GetOrCreateRole(ctx context.Context, key RoleKey) (role models.Role, created bool, err error) {
	if key.RealmID == "" || key.Name == "" {
		return models.Role{}, false, fmt.Errorf("%w: %q", ErrInvalidRole, key.String())
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := byKey(tx, key).First(&role).Error
		if errFind == nil {
			return nil
		}

		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}

		role = models.Role{RealmID: key.RealmID, ClientID: key.ClientID, Name: key.Name}
		if errCreate := tx.Create(&role).Error; errCreate != nil {
			return errCreate
		}

		created = true

		return nil
	})
	if err != nil {
		// lost an insert race against a concurrent caller
		if existing, errFind := s.FindRole(ctx, key); errFind == nil {
			return existing, false, nil
		}

		return models.Role{}, false, fmt.Errorf("get or create role %s: %w", key, err)
	}

	return role, created, nil
}

// FindRole returns the role identified by key or ErrRoleNotFound.
func (s *Store) FindRole(ctx context.Context, key RoleKey) (models.Role, error) {
	var role models.Role

	err := byKey(s.db.WithContext(ctx), key).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, key)
		}

		return models.Role{}, fmt.Errorf("find role %s: %w", key, err)
	}

	return role, nil
}

// ListScopeRoles returns all roles of a realm (clientID empty) or of one client,
// ordered by name.
func (s *Store) ListScopeRoles(ctx context.Context, realmID, clientID string) ([]models.Role, error) {
	var roles []models.Role

	err := s.db.WithContext(ctx).
		Where(scopeQuery, realmID, clientID).
		Order("name").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("list roles of %s/%s: %w", realmID, clientID, err)
	}

	return roles, nil
}

// Grant grants role to user. Granting a held role is a no-op; granted
// reports whether a row was written.
func (s *Store) Grant(ctx context.Context, userID uint64, roleID uint) (granted bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if errCount := tx.Model(&models.UserRoleMapping{}).
			Where("user_id = ? AND role_id = ?", userID, roleID).
			Count(&n).Error; errCount != nil {
			return errCount
		}

		if n > 0 {
			return nil
		}

		if errCreate := tx.Omit(clause.Associations).
			Create(&models.UserRoleMapping{UserID: userID, RoleID: roleID}).Error; errCreate != nil {
			return errCreate
		}

		granted = true

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("grant role %d to user %d: %w", roleID, userID, err)
	}

	return granted, nil
}

// Revoke removes the grant of role from user, ErrNotGranted when there is none.
func (s *Store) Revoke(ctx context.Context, userID uint64, roleID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRoleMapping{})
		if res.Error != nil {
			return fmt.Errorf("revoke role %d from user %d: %w", roleID, userID, res.Error)
		}

		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: role %d, user %d", ErrNotGranted, roleID, userID)
		}

		return nil
	})
}

// ListRoles returns the roles granted locally to user, realm roles first.
func (s *Store) ListRoles(ctx context.Context, userID uint64) ([]models.Role, error) {
	var roles []models.Role

	err := s.db.WithContext(ctx).
		Joins("JOIN user_role_mappings ON user_role_mappings.role_id = roles.id").
		Where("user_role_mappings.user_id = ?", userID).
		Order("roles.client_id, roles.name").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("list roles of user %d: %w", userID, err)
	}

	return roles, nil
}

// CountGrants returns the number of local grant rows for roles of a realm
// (clientID empty) or of one client.
func (s *Store) CountGrants(ctx context.Context, realmID, clientID string) (int64, error) {
	var n int64

	err := s.db.WithContext(ctx).Model(&models.UserRoleMapping{}).
		Joins("JOIN roles ON roles.id = user_role_mappings.role_id").
		Where("roles.realm_id = ? AND roles.client_id = ?", realmID, clientID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count grants of %s/%s: %w", realmID, clientID, err)
	}

	return n, nil
}
