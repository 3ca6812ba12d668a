package cmd

import (
	"github.com/spf13/cobra"

	"github.com/StorX2-0/iCloud-Backup/daemon"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <local-path>",
	Short: "Freeze a local album so future syncs leave it untouched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), daemon.Operation{Kind: daemon.OpArchive, ArchivePath: args[0]})
	},
}

func init() {
	archiveCmd.Flags().BoolVar(&cfg.RemoteDelete, "remote-delete", false,
		"also delete the non-favorite remote originals")
	rootCmd.AddCommand(archiveCmd)
}
