package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/StorX2-0/iCloud-Backup/config"
	"github.com/StorX2-0/iCloud-Backup/daemon"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
)

var cfg = config.Defaults()

var rootCmd = &cobra.Command{
	Use:           "icloud-backup",
	Short:         "One-way backup of an iCloud Photos Library to a local directory tree",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg.ResolveEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}
		// No error reported after this point can carry a credential.
		cfg.ScrubEnv()
		logger.Info(cmd.Context(), "starting", logger.String("user", cfg.MaskedUser()),
			logger.String("data_dir", cfg.DataDir))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfg.Username, "username", "u", "", "Apple ID username")
	pf.StringVarP(&cfg.Password, "password", "p", "", "Apple ID password")
	pf.StringVar(&cfg.TrustToken, "trust-token", "", "trust token from a previous MFA validation")
	pf.StringVarP(&cfg.DataDir, "data-dir", "d", cfg.DataDir, "target filesystem root")
	pf.IntVar(&cfg.Port, "port", cfg.Port, "MFA endpoint port")
	pf.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "sync retry rounds after recoverable failures")
	pf.IntVar(&cfg.DownloadThreads, "download-threads", cfg.DownloadThreads, "concurrent asset downloads")
	pf.BoolVar(&cfg.Force, "force", false, "override the library lock")
}

func run(ctx context.Context, op daemon.Operation) error {
	runner, err := daemon.NewRunner(cfg, daemon.LogObservers())
	if err != nil {
		return err
	}
	return runner.Run(ctx, op)
}

// Execute dispatches the CLI. Exit code 0 on success, 1 on any fatal error.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ctx := context.Background()
		if apperr.IsInterrupt(err) {
			logger.Warn(ctx, "shut down on signal")
		} else {
			logger.Error(ctx, "operation failed", logger.ErrorField(err))
		}
		os.Exit(1)
	}
}
