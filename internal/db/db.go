// Package db opens the relational store and migrates its schema.
package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/dsn"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	gormlogger "github.com/GoPowerDNS-Admin/rolesync/internal/logger/adapter/gorm"
)

// ErrUnknownEngine is returned for a gorm engine that has no driver.
var ErrUnknownEngine = errors.New("unknown gorm engine")

// Open connects to the configured database. sqlLogLevel selects the level at
// which statements are logged.
func Open(cfg *config.DB, sqlLogLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(cfg.GormEngine) {
	case "mysql":
		dialector = mysql.Open(dsn.Create(cfg))
	case "postgres":
		dialector = postgres.Open(dsn.Create(cfg))
	case "sqlite":
		// cascade deletes of grants rely on enforced foreign keys
		withFK := *cfg
		withFK.Extras = joinExtras(withFK.Extras, "_pragma=foreign_keys(1)")
		dialector = sqlite.Open(dsn.Create(&withFK))
	default:
		return nil, errors.Wrap(ErrUnknownEngine, cfg.GormEngine)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.New(sqlLogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	return db, nil
}

func joinExtras(extras, param string) string {
	if extras == "" {
		return param
	}

	if strings.Contains(extras, param) {
		return extras
	}

	return extras + "&" + param
}

// Migrate creates or updates the schema for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.UserRoleMapping{},
		&models.RoleMapper{},
		&models.SyncRun{},
	); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	return nil
}
