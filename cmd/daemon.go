package cmd

import (
	"github.com/spf13/cobra"

	"github.com/StorX2-0/iCloud-Backup/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync on a cron schedule until a shutdown signal arrives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), daemon.Operation{Kind: daemon.OpDaemon, CronExpr: cfg.Schedule})
	},
}

func init() {
	daemonCmd.Flags().StringVar(&cfg.Schedule, "schedule", "", "cron expression for scheduled syncs")
	rootCmd.AddCommand(daemonCmd)
}
