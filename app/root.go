// Package app implements the main application commands.
package app

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/daemon"
	"github.com/GoPowerDNS-Admin/rolesync/internal/logger"
)

var (
	configPath string // Path to the configuration directory holding main.toml

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "rolesync",
		Short: "rolesync keeps role mappings in sync between a directory and a local role store",
		Long: `rolesync federates role mappings between an LDAP directory and a local
role store. Every realm configures role mappers that import, delegate to or
merge with the directory, and a sync engine keeps imported roles current.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error

			if cfg, err = config.ReadConfig(configPath); err != nil {
				return err
			}

			return logger.Init(cfg.Log)
		},
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "directory holding main.toml")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openDaemon builds the services for one-shot commands.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	return daemon.New(ctx, &cfg, daemon.Options{})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
