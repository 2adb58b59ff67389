package dsn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
)

func TestCreate(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      config.DB
		expected string
	}{
		{
			name: "mysql",
			cfg: config.DB{
				GormEngine: "mysql",
				Host:       "db",
				Port:       3306,
				User:       "rolesync",
				Password:   "secret",
				Name:       "rolesync",
				Extras:     "parseTime=true",
			},
			expected: "rolesync:secret@tcp(db:3306)/rolesync?parseTime=true",
		},
		{
			name: "postgres with extras",
			cfg: config.DB{
				GormEngine: "Postgres",
				Host:       "db",
				Port:       5432,
				User:       "rolesync",
				Password:   "secret",
				Name:       "rolesync",
				Extras:     "sslmode=disable",
			},
			expected: "host=db port=5432 user=rolesync password=secret dbname=rolesync sslmode=disable",
		},
		{
			name:     "sqlite file",
			cfg:      config.DB{GormEngine: "sqlite", Name: "/var/lib/rolesync.db"},
			expected: "/var/lib/rolesync.db",
		},
		{
			name:     "sqlite with pragma",
			cfg:      config.DB{GormEngine: "sqlite", Name: "rolesync.db", Extras: "_pragma=foreign_keys(1)"},
			expected: "rolesync.db?_pragma=foreign_keys(1)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Create(&tc.cfg))
		})
	}
}
