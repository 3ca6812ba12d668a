package cmd

import (
	"github.com/spf13/cobra"

	"github.com/StorX2-0/iCloud-Backup/daemon"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Refresh and print the trust token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), daemon.Operation{Kind: daemon.OpToken})
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
