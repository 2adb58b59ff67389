package models

import "time"

// UserRoleMapping is a local grant of a role to a user.
type UserRoleMapping struct {
	// UserID is the ID of the user holding the role.
	UserID uint64 `gorm:"primaryKey;column:user_id"`
	// RoleID is the ID of the granted role.
	RoleID uint `gorm:"primaryKey;column:role_id"`
	// User is the associated user. Grants go away with the user (CASCADE).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Role is the associated role. Grants go away with the role (CASCADE).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the role was granted (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the UserRoleMapping model.
func (UserRoleMapping) TableName() string {
	return "user_role_mappings"
}
