// Package identity resolves users of a realm into references the mapping
// strategies can work with.
package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
)

// ErrUserNotFound is returned when no user matches.
var ErrUserNotFound = errors.New("user not found")

// UserRef is a resolved user. ExternalID holds the directory DN of a federated
// user and is empty for a purely local one.
type UserRef struct {
	ID         uint64
	RealmID    string
	Username   string
	ExternalID string
}

// Federated reports whether the user has a directory counterpart.
func (u UserRef) Federated() bool {
	return u.ExternalID != ""
}

// String renders the user as realm/username.
func (u UserRef) String() string {
	return u.RealmID + "/" + u.Username
}

// FromModel converts a stored user.
func FromModel(u models.User) UserRef {
	return UserRef{ID: u.ID, RealmID: u.RealmID, Username: u.Username, ExternalID: u.ExternalID}
}

// Resolver looks up users of a realm.
type Resolver interface {
	ByUsername(ctx context.Context, realmID, username string) (UserRef, error)
	ByExternalID(ctx context.Context, realmID, externalID string) (UserRef, error)
}

// DBResolver resolves users from the users table.
type DBResolver struct {
	db *gorm.DB
}

// NewDBResolver creates a resolver on db.
func NewDBResolver(db *gorm.DB) *DBResolver {
	return &DBResolver{db: db}
}

// ByUsername returns the user of realmID named username.
func (r *DBResolver) ByUsername(ctx context.Context, realmID, username string) (UserRef, error) {
	var user models.User

	err := r.db.WithContext(ctx).
		Where("realm_id = ? AND username = ?", realmID, username).
		First(&user).Error

	return result(user, err, realmID+"/"+username)
}

// ByExternalID returns the federated user of realmID whose directory DN is
// externalID. DNs compare case-insensitively.
func (r *DBResolver) ByExternalID(ctx context.Context, realmID, externalID string) (UserRef, error) {
	var user models.User

	err := r.db.WithContext(ctx).
		Where("realm_id = ? AND LOWER(external_id) = LOWER(?)", realmID, externalID).
		First(&user).Error

	return result(user, err, realmID+"/"+externalID)
}

func result(user models.User, err error, what string) (UserRef, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserRef{}, fmt.Errorf("%w: %s", ErrUserNotFound, what)
		}

		return UserRef{}, fmt.Errorf("resolve user %s: %w", what, err)
	}

	return FromModel(user), nil
}
