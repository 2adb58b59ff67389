// Package models contains database model definitions.
package models

import "time"

// Role is a realm role or, when ClientID is set, a role of that client.
// Roles are unique per (RealmID, ClientID, Name); the role store creates them
// idempotently.
type Role struct {
	// ID is the unique identifier for the role.
	ID uint `gorm:"primaryKey"`
	// RealmID is the tenant the role belongs to.
	RealmID string `gorm:"size:100;not null;uniqueIndex:idx_role_scope_name"`
	// ClientID is the owning client, empty for realm roles.
	ClientID string `gorm:"size:100;not null;default:'';uniqueIndex:idx_role_scope_name"`
	// Name is the role name within its realm or client.
	Name string `gorm:"size:255;not null;uniqueIndex:idx_role_scope_name"`
	// Composite marks roles aggregating other roles.
	Composite bool `gorm:"default:false"`
	// Description provides a human-readable description of the role's purpose.
	Description string `gorm:"size:255"`
	// CreatedAt is the timestamp when the role was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the role was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Role model.
func (Role) TableName() string {
	return "roles"
}

// IsClientRole reports whether the role is scoped to a client.
func (r Role) IsClientRole() bool {
	return r.ClientID != ""
}

// String renders the role as name or client/name.
func (r Role) String() string {
	if r.IsClientRole() {
		return r.ClientID + "/" + r.Name
	}

	return r.Name
}
