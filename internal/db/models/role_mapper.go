package models

import "time"

// RoleMapper is the persisted configuration of a role mapper.
type RoleMapper struct {
	ID      uint   `gorm:"primaryKey"`
	RealmID string `gorm:"size:100;not null;uniqueIndex:idx_mapper_realm_name"`
	Name    string `gorm:"size:100;not null;uniqueIndex:idx_mapper_realm_name"`
	// Target is "realm" or "client:<clientID>".
	Target string `gorm:"size:120;not null"`
	// Mode is import, directory_only or read_only.
	Mode    string `gorm:"size:20;not null"`
	RolesDN string `gorm:"size:255;not null"`
	// RoleObjectClasses is a comma separated list.
	RoleObjectClasses         string `gorm:"size:255;not null"`
	RoleNameAttribute         string `gorm:"size:100;not null"`
	MembershipAttribute       string `gorm:"size:100;not null"`
	MembershipAttributeType   string `gorm:"size:10;not null"`
	UserRolesRetrieveStrategy string `gorm:"size:30;not null"`
	MemberOfAttribute         string `gorm:"size:100"`
	RolesFilter               string `gorm:"size:255"`
	SyncInterval              time.Duration
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// TableName specifies the database table name for the RoleMapper model.
func (RoleMapper) TableName() string {
	return "role_mappers"
}
