package models

import "time"

// SyncRun records the outcome of one synchronization run of a mapper.
type SyncRun struct {
	ID            uint64 `gorm:"primaryKey"`
	RealmID       string `gorm:"size:100;not null;index:idx_sync_run_mapper"`
	Mapper        string `gorm:"size:100;not null;index:idx_sync_run_mapper"`
	State         string `gorm:"size:20;not null"`
	StartedAt     time.Time
	FinishedAt    time.Time
	RolesCreated  int
	RolesExisting int
	GrantsAdded   int
	Failures      int
	// Errors holds one failure per line.
	Errors string `gorm:"type:text"`
}

// TableName specifies the database table name for the SyncRun model.
func (SyncRun) TableName() string {
	return "sync_runs"
}
