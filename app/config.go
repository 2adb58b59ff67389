package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		masked := cfg
		masked.DB.Password = mask(masked.DB.Password)
		masked.Directory.BindPassword = mask(masked.Directory.BindPassword)
		masked.Webserver.APIToken = mask(masked.Webserver.APIToken)

		out, err := config.DumpConfigJSON(&masked)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), out)

		return nil
	},
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return "********"
}
