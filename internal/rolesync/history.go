package rolesync

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
)

const defaultHistoryLimit = 20

// History stores one row per synchronization run.
type History struct {
	db *gorm.DB
}

// NewHistory creates a history on db.
func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

// Record stores the outcome of r.
func (h *History) Record(ctx context.Context, r Result) error {
	errs := make([]string, 0, len(r.Failures)+1)
	for _, f := range r.Failures {
		errs = append(errs, f.String())
	}

	if r.Err != nil {
		errs = append(errs, r.Err.Error())
	}

	row := models.SyncRun{
		RealmID:       r.RealmID,
		Mapper:        r.Mapper,
		State:         string(r.State),
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		RolesCreated:  r.RolesCreated,
		RolesExisting: r.RolesExisting,
		GrantsAdded:   r.GrantsAdded,
		Failures:      len(r.Failures),
		Errors:        strings.Join(errs, "\n"),
	}

	if err := h.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record sync run of %s/%s: %w", r.RealmID, r.Mapper, err)
	}

	return nil
}

// Recent returns the latest runs of a mapper, newest first. limit <= 0 uses a default.
func (h *History) Recent(ctx context.Context, realmID, mapperName string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var runs []models.SyncRun

	err := h.db.WithContext(ctx).
		Where("realm_id = ? AND mapper = ?", realmID, mapperName).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync runs of %s/%s: %w", realmID, mapperName, err)
	}

	return runs, nil
}
