package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() { //nolint: gochecknoinits
	mappersRunsCmd.Flags().IntVar(&runLimit, "limit", 10, "number of runs to show") //nolint:mnd

	mappersCmd.AddCommand(mappersListCmd, mappersApplyCmd, mappersPushCmd, mappersRemoveRoleCmd, mappersRunsCmd)
	rootCmd.AddCommand(mappersCmd)
}

var (
	runLimit int

	mappersCmd = &cobra.Command{
		Use:   "mappers",
		Short: "Manage the role mappers of a realm",
	}

	mappersListCmd = &cobra.Command{
		Use:   "list <realm>",
		Short: "List the mappers of a realm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon(cmd.Context())
			if err != nil {
				return err
			}

			defer d.Close() //nolint:errcheck

			cfgs, err := d.Registry.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, m := range cfgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", m.Name, m.Target, m.Mode, m.RolesDN)
			}

			return nil
		},
	}

	mappersApplyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Store the mappers of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// opening the daemon applies the configured mappers
			d, err := openDaemon(cmd.Context())
			if err != nil {
				return err
			}

			defer d.Close() //nolint:errcheck

			fmt.Fprintf(cmd.OutOrStdout(), "%d mappers applied\n", len(cfg.Mappers))

			return nil
		},
	}

	mappersPushCmd = &cobra.Command{
		Use:   "push <realm> <mapper>",
		Short: "Create the local roles of a mapper in the directory",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon(cmd.Context())
			if err != nil {
				return err
			}

			defer d.Close() //nolint:errcheck

			m, err := d.Registry.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			res, err := d.Engine.PushRoles(cmd.Context(), m)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d roles created, %d already present\n", res.Created, res.Existing)

			return nil
		},
	}

	mappersRemoveRoleCmd = &cobra.Command{
		Use:   "remove-role <realm> <mapper> <role>",
		Short: "Delete the directory object of a role, the local role stays",
		Args:  cobra.ExactArgs(3), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon(cmd.Context())
			if err != nil {
				return err
			}

			defer d.Close() //nolint:errcheck

			m, err := d.Registry.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			dn, err := d.Engine.RemoveRoleObject(cmd.Context(), m, args[2])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", dn)

			return nil
		},
	}

	mappersRunsCmd = &cobra.Command{
		Use:   "runs <realm> <mapper>",
		Short: "Show the latest synchronization runs of a mapper",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon(cmd.Context())
			if err != nil {
				return err
			}

			defer d.Close() //nolint:errcheck

			runs, err := d.History.Recent(cmd.Context(), args[0], args[1], runLimit)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), runs)
		},
	}
)
