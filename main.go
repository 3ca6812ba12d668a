package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"github.com/StorX2-0/iCloud-Backup/cmd"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/monitor"
)

func main() {
	ctx := context.Background()

	// A missing .env just means everything comes from flags and the
	// real environment.
	_ = godotenv.Load()

	logger.InitDefault()

	if err := monitor.InitializeGlobalManager(); err != nil {
		logger.Warn(ctx, "metrics disabled", logger.ErrorField(err))
	}
	monitor.StartSystemMetricsUpdater(30 * time.Second)

	cmd.Execute()
}
