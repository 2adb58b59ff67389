package models

import "time"

// User is the local record of a user. Federated users carry the distinguished
// name of their directory counterpart in ExternalID.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// RealmID is the tenant the user belongs to.
	RealmID string `gorm:"size:100;not null;uniqueIndex:idx_user_realm_username"`
	// Username is unique within the realm.
	Username string `gorm:"size:100;not null;uniqueIndex:idx_user_realm_username"`
	// Email is the user's email address.
	Email string `gorm:"size:255"`
	// FederationLink names the directory provider the user was imported from, empty for local users.
	FederationLink string `gorm:"size:100"`
	// ExternalID is the directory DN of a federated user.
	ExternalID string `gorm:"size:255;index"`
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the User model.
func (User) TableName() string {
	return "users"
}
