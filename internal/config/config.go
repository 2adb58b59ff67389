// Package config handles input from etc/main.toml, the environment and a JSON override.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable read by the config (ROLESYNC_DB_HOST, ...).
	EnvPrefix = "ROLESYNC"

	// EnvConfigJSON holds a JSON document merged over the TOML configuration.
	EnvConfigJSON = "ROLESYNC_CONFIG_JSON"

	mainConfigFile = "main.toml"
)

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var c Config

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(path, mainConfigFile))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	// override it from env
	if configAsJSON := os.Getenv(EnvConfigJSON); configAsJSON != "" {
		if err := mergeJSON(v, configAsJSON); err != nil {
			return Config{}, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	return c, validateConfig(&c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "rolesync")
	v.SetDefault("webserver.port", 8080)
	v.SetDefault("webserver.shutdowntime", 5) //nolint:mnd
	v.SetDefault("webserver.checkalive", "/checkalive")
	v.SetDefault("db.gormengine", "mysql")
	v.SetDefault("directory.port", 389) //nolint:mnd
	v.SetDefault("directory.timeout", 10) //nolint:mnd
	v.SetDefault("directory.pagesize", 500) //nolint:mnd
	v.SetDefault("directory.provider", "ldap")
	v.SetDefault("sync.tick", time.Minute)
	v.SetDefault("log.loglevel", "info")
	v.SetDefault("log.appname", "rolesync")
	v.SetDefault("log.servicename", "rolesync")
}

func mergeJSON(v *viper.Viper, configAsJSON string) error {
	v.SetConfigType("json")

	if err := v.MergeConfig(strings.NewReader(configAsJSON)); err != nil {
		return errors.Wrap(err, "failed to merge json config override")
	}

	return nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validateConfig checks the settings the daemon can not start without and
// fills in the remaining defaults.
func validateConfig(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	switch strings.ToLower(c.DB.GormEngine) {
	case "mysql", "postgres", "sqlite":
	default:
		return errors.Wrap(ErrUnknownGormEngine, invalidErrMessage)
	}

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	return nil
}
