// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"
	"strings"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
)

// Create builds the Data Source Name for the configured gorm engine.
func Create(dbCfg *config.DB) string {
	switch strings.ToLower(dbCfg.GormEngine) {
	case "postgres":
		out := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.User,
			dbCfg.Password,
			dbCfg.Name,
		)

		if dbCfg.Extras != "" {
			out += " " + dbCfg.Extras
		}

		return out
	case "sqlite":
		if dbCfg.Extras != "" {
			return dbCfg.Name + "?" + dbCfg.Extras
		}

		return dbCfg.Name
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.User,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.Name,
			dbCfg.Extras,
		)
	}
}
