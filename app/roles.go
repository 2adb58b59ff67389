package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoPowerDNS-Admin/rolesync/internal/daemon"
	"github.com/GoPowerDNS-Admin/rolesync/internal/federation"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

func init() { //nolint: gochecknoinits
	for _, c := range []*cobra.Command{rolesGrantCmd, rolesRevokeCmd} {
		c.Flags().StringVar(&roleClient, "client", "", "client owning the role, empty for a realm role")
	}

	rolesCmd.AddCommand(rolesListCmd, rolesGrantCmd, rolesRevokeCmd, rolesImportCmd)
	rootCmd.AddCommand(rolesCmd)
}

var (
	roleClient string

	rolesCmd = &cobra.Command{
		Use:   "roles",
		Short: "Inspect and change the role mappings of a user",
	}

	rolesListCmd = &cobra.Command{
		Use:   "list <realm> <username>",
		Short: "List the effective roles of a user",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), args[0], args[1],
				func(ctx context.Context, d *daemon.Daemon, snap *mapper.Snapshot, user identity.UserRef) error {
					roles, err := d.Dispatcher.EffectiveRoles(ctx, snap, user)
					if err != nil {
						return err
					}

					for _, r := range roles {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", r.Role, r.Origins)
					}

					return nil
				})
		},
	}

	rolesGrantCmd = &cobra.Command{
		Use:   "grant <realm> <username> <role>",
		Short: "Grant a role to a user",
		Args:  cobra.ExactArgs(3), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), args[0], args[1],
				func(ctx context.Context, d *daemon.Daemon, snap *mapper.Snapshot, user identity.UserRef) error {
					return d.Dispatcher.GrantRole(ctx, snap, user, federation.RoleRef{ClientID: roleClient, Name: args[2]})
				})
		},
	}

	rolesRevokeCmd = &cobra.Command{
		Use:   "revoke <realm> <username> <role>",
		Short: "Revoke a role from a user",
		Args:  cobra.ExactArgs(3), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), args[0], args[1],
				func(ctx context.Context, d *daemon.Daemon, snap *mapper.Snapshot, user identity.UserRef) error {
					return d.Dispatcher.RevokeRole(ctx, snap, user, federation.RoleRef{ClientID: roleClient, Name: args[2]})
				})
		},
	}

	rolesImportCmd = &cobra.Command{
		Use:   "import <realm> <username>",
		Short: "Copy the directory roles of a federated user into local grants",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), args[0], args[1],
				func(ctx context.Context, d *daemon.Daemon, snap *mapper.Snapshot, user identity.UserRef) error {
					added, err := d.Dispatcher.ImportUser(ctx, snap, user)
					if err != nil {
						return err
					}

					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d grants added\n", user, added)

					return nil
				})
		},
	}
)

type userFunc func(ctx context.Context, d *daemon.Daemon, snap *mapper.Snapshot, user identity.UserRef) error

// withUser resolves the user and the realm's mappers and calls fn with them.
func withUser(ctx context.Context, realmID, username string, fn userFunc) error {
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}

	defer d.Close() //nolint:errcheck

	user, err := d.Users.ByUsername(ctx, realmID, username)
	if err != nil {
		return err
	}

	snap, err := d.Snapshot(ctx, realmID)
	if err != nil {
		return err
	}

	return fn(ctx, d, snap, user)
}
