package cmd

import (
	"github.com/spf13/cobra"

	"github.com/StorX2-0/iCloud-Backup/daemon"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync of the remote library to the local tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), daemon.Operation{Kind: daemon.OpSync})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
