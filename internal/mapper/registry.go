package mapper

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
)

const realmNameQuery = "realm_id = ? AND name = ?"

// Guard serializes configuration changes with synchronizations. Exclusive
// runs fn while no synchronization of the mapper can start, or fails when one
// is running.
type Guard interface {
	Exclusive(realmID, mapperName string, fn func() error) error
}

// Registry persists mapper configurations.
type Registry struct {
	db    *gorm.DB
	guard Guard
}

// NewRegistry creates a registry on db. guard may be nil.
func NewRegistry(db *gorm.DB, guard Guard) *Registry {
	return &Registry{db: db, guard: guard}
}

func (r *Registry) exclusive(realmID, name string, fn func() error) error {
	if r.guard == nil {
		return fn()
	}

	return r.guard.Exclusive(realmID, name, fn)
}

// Save creates or replaces the mapper cfg.Name of cfg.RealmID.
func (r *Registry) Save(ctx context.Context, cfg Config) (Config, error) {
	valid, err := cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	row := toModel(valid)

	err = r.exclusive(valid.RealmID, valid.Name, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.RoleMapper

			errFind := tx.Where(realmNameQuery, valid.RealmID, valid.Name).First(&existing).Error

			switch {
			case errFind == nil:
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt

				return tx.Save(&row).Error
			case errors.Is(errFind, gorm.ErrRecordNotFound):
				return tx.Create(&row).Error
			default:
				return errFind
			}
		})
	})
	if err != nil {
		return Config{}, fmt.Errorf("save mapper %s/%s: %w", valid.RealmID, valid.Name, err)
	}

	return valid, nil
}

// Get returns one mapper.
func (r *Registry) Get(ctx context.Context, realmID, name string) (Config, error) {
	var row models.RoleMapper

	err := r.db.WithContext(ctx).Where(realmNameQuery, realmID, name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Config{}, fmt.Errorf("%w: %s/%s", ErrMapperNotFound, realmID, name)
		}

		return Config{}, fmt.Errorf("get mapper %s/%s: %w", realmID, name, err)
	}

	return fromModel(row)
}

// List returns the mappers of realmID ordered by name.
func (r *Registry) List(ctx context.Context, realmID string) ([]Config, error) {
	var rows []models.RoleMapper

	if err := r.db.WithContext(ctx).Where("realm_id = ?", realmID).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list mappers of %s: %w", realmID, err)
	}

	out := make([]Config, 0, len(rows))

	for _, row := range rows {
		cfg, err := fromModel(row)
		if err != nil {
			return nil, err
		}

		out = append(out, cfg)
	}

	return out, nil
}

// Realms returns every realm with at least one mapper.
func (r *Registry) Realms(ctx context.Context) ([]string, error) {
	var realms []string

	if err := r.db.WithContext(ctx).Model(&models.RoleMapper{}).
		Distinct("realm_id").Order("realm_id").Pluck("realm_id", &realms).Error; err != nil {
		return nil, fmt.Errorf("list realms: %w", err)
	}

	return realms, nil
}

// Delete removes a mapper. Roles and grants it produced stay.
func (r *Registry) Delete(ctx context.Context, realmID, name string) error {
	return r.exclusive(realmID, name, func() error {
		res := r.db.WithContext(ctx).Where(realmNameQuery, realmID, name).Delete(&models.RoleMapper{})
		if res.Error != nil {
			return fmt.Errorf("delete mapper %s/%s: %w", realmID, name, res.Error)
		}

		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s/%s", ErrMapperNotFound, realmID, name)
		}

		return nil
	})
}

// Snapshot loads the current mappers of realmID.
func (r *Registry) Snapshot(ctx context.Context, realmID string) (*Snapshot, error) {
	cfgs, err := r.List(ctx, realmID)
	if err != nil {
		return nil, err
	}

	return NewSnapshot(realmID, cfgs)
}
