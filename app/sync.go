package app

import (
	"github.com/spf13/cobra"

	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(syncCmd)
}

// syncSummary is the printed outcome of a run.
type syncSummary struct {
	Realm         string
	Mapper        string
	State         rolesync.State
	RolesCreated  int
	RolesExisting int
	GrantsAdded   int
	Failures      []string `json:",omitempty"`
}

var syncCmd = &cobra.Command{
	Use:   "sync <realm> <mapper>",
	Short: "Synchronize one mapper now",
	Args:  cobra.ExactArgs(2), //nolint:mnd
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}

		defer d.Close() //nolint:errcheck

		snap, err := d.Snapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		res, err := d.Dispatcher.TriggerSync(cmd.Context(), snap, args[1])
		if err != nil && !rolesync.IsPartial(err) {
			return err
		}

		out := syncSummary{
			Realm:         res.RealmID,
			Mapper:        res.Mapper,
			State:         res.State,
			RolesCreated:  res.RolesCreated,
			RolesExisting: res.RolesExisting,
			GrantsAdded:   res.GrantsAdded,
		}
		for _, f := range res.Failures {
			out.Failures = append(out.Failures, f.String())
		}

		if errPrint := printJSON(cmd.OutOrStdout(), out); errPrint != nil {
			return errPrint
		}

		return err
	},
}
