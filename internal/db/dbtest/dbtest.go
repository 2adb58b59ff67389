// Package dbtest opens migrated sqlite databases for tests.
package dbtest

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
)

// Open creates a migrated sqlite database in a temporary directory of t.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := config.DB{
		GormEngine: "sqlite",
		Name:       filepath.Join(t.TempDir(), "rolesync.db"),
		Extras:     "_pragma=busy_timeout(5000)",
	}

	gdb, err := db.Open(&cfg, "")
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.Migrate(gdb), "failed to migrate test database")

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return gdb
}

// CreateUser inserts a user and returns it with its generated ID.
func CreateUser(t *testing.T, gdb *gorm.DB, realm, username, externalID string) models.User {
	t.Helper()

	user := models.User{RealmID: realm, Username: username, ExternalID: externalID}
	if externalID != "" {
		user.FederationLink = "ldap"
	}

	require.NoError(t, gdb.Create(&user).Error, "failed to seed user")

	return user
}

// Writes counts created, updated and deleted rows on gdb from now on. When
// tables are given only rows of those tables are counted.
func Writes(t *testing.T, gdb *gorm.DB, tables ...string) func() int64 {
	t.Helper()

	var n int64

	count := func(tx *gorm.DB) {
		if tx.Error != nil {
			return
		}

		if len(tables) > 0 && !slices.Contains(tables, tx.Statement.Table) {
			return
		}

		n += tx.RowsAffected
	}

	name := "dbtest:writes:" + t.Name()
	require.NoError(t, gdb.Callback().Create().After("gorm:create").Register(name, count))
	require.NoError(t, gdb.Callback().Update().After("gorm:update").Register(name, count))
	require.NoError(t, gdb.Callback().Delete().After("gorm:delete").Register(name, count))

	return func() int64 { return n }
}
