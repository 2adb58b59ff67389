package config

import (
	"time"

	"github.com/GoPowerDNS-Admin/rolesync/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Directory Directory
	Sync      Sync
	Mappers   []Mapper `validate:"dive"`
}

// Webserver implement webserver settings.
type Webserver struct {
	Port         int    // listening port for the webserver
	URL          string // base url for the webserver
	ShutDownTime int    // wait time for shutdown
	CheckAlive   string // uri answering liveness probes
	APIToken     string // bearer token required for changing requests, empty disables the check
}

// Directory holds the LDAP connection settings used by the directory adapter.
type Directory struct {
	// Provider is the federation link stored on users imported from this directory.
	Provider string
	// Host is the LDAP server hostname or IP address.
	Host string `validate:"required"`
	// Port is the LDAP server port (typically 389 for LDAP, 636 for LDAPS).
	Port int `validate:"min=1,max=65535"`
	// UseSSL enables LDAPS.
	UseSSL bool
	// UseTLS enables StartTLS on a plain connection.
	UseTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the distinguished name used to bind before every operation.
	BindDN string
	// BindPassword is the password for BindDN.
	BindPassword string
	// Timeout is the connection and search time limit in seconds.
	Timeout int `validate:"min=0"`
	// PageSize is the number of entries fetched per paged search round trip.
	PageSize int `validate:"min=0"`
}

// Sync controls the periodic synchronization scheduler.
type Sync struct {
	Enabled bool
	// Tick is how often the scheduler looks for mappers whose interval elapsed.
	Tick time.Duration
}

// Mapper is the file representation of a role mapper. Mappers listed here are
// applied to the database on start.
type Mapper struct {
	Realm                   string   `validate:"required"`
	Name                    string   `validate:"required"`
	Target                  string   `validate:"required"`
	Mode                    string   `validate:"required,oneof=import directory_only read_only"`
	RolesDN                 string   `validate:"required"`
	RoleObjectClasses       []string `validate:"required,min=1,dive,required"`
	RoleNameAttribute       string
	MembershipAttribute     string
	MembershipAttributeType string `validate:"omitempty,oneof=dn uid"`
	RetrieveStrategy        string `validate:"omitempty,oneof=member_attribute member_of"`
	MemberOfAttribute       string
	RolesFilter             string
	SyncInterval            time.Duration
}
