package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() { //nolint: gochecknoinits
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable dev mode")

	rootCmd.AddCommand(startCmd)
}

var (
	devMode bool

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the rolesync web service and sync scheduler",
		PreRun: func(_ *cobra.Command, _ []string) {
			if devMode {
				cfg.DevMode = true
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := openDaemon(ctx)
			if err != nil {
				return err
			}

			defer d.Close() //nolint:errcheck

			return d.Start(ctx)
		},
	}
)
