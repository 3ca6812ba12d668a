package daemon

import (
	"context"

	"github.com/StorX2-0/iCloud-Backup/auth"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
)

// LogObservers routes every progress hook through the structured logger.
// The CLI and the daemon both run with these; tests plug in their own.
func LogObservers() Observers {
	return Observers{
		Auth:    authLogObserver{},
		Sync:    syncLogObserver{},
		Archive: archiveLogObserver{},
	}
}

type authLogObserver struct{}

func (authLogObserver) MFARequired(devices int, phones []auth.TrustedPhone) {
	logger.Info(context.Background(), "MFA required, waiting for code",
		logger.Int("trusted_devices", devices), logger.Int("trusted_phones", len(phones)))
}
func (authLogObserver) MFASent(method string) {
	logger.Info(context.Background(), "MFA code resent", logger.String("method", method))
}
func (authLogObserver) Authenticated() {
	logger.Info(context.Background(), "authenticated")
}
func (authLogObserver) Ready() {}
func (authLogObserver) Warning(msg string) {
	logger.Warn(context.Background(), msg)
}

type syncLogObserver struct{}

func (syncLogObserver) SyncStarted(attempt int) {
	logger.Info(context.Background(), "sync round started", logger.Int("attempt", attempt))
}
func (syncLogObserver) SnapshotLoaded(localAssets, remoteAssets int) {
	logger.Info(context.Background(), "snapshots loaded",
		logger.Int("local", localAssets), logger.Int("remote", remoteAssets))
}
func (syncLogObserver) DiffComputed(toAdd, toKeep, toDelete int) {
	logger.Info(context.Background(), "diff computed",
		logger.Int("add", toAdd), logger.Int("keep", toKeep), logger.Int("delete", toDelete))
}
func (syncLogObserver) AssetDownloaded(name string, size int64) {
	logger.Info(context.Background(), "asset downloaded",
		logger.String("name", name), logger.Int64("bytes", size))
}
func (syncLogObserver) AssetDeleted(name string) {
	logger.Info(context.Background(), "asset deleted", logger.String("fingerprint", name))
}
func (syncLogObserver) SyncCompleted(added, deleted int) {
	logger.Info(context.Background(), "sync completed",
		logger.Int("added", added), logger.Int("deleted", deleted))
}
func (syncLogObserver) Warning(msg string) {
	logger.Warn(context.Background(), msg)
}

type archiveLogObserver struct{}

func (archiveLogObserver) AssetPersisted(name string) {
	logger.Info(context.Background(), "asset persisted", logger.String("name", name))
}
func (archiveLogObserver) Archived(path string, assets int) {
	logger.Info(context.Background(), "album archived",
		logger.String("path", path), logger.Int("assets", assets))
}
func (archiveLogObserver) RemoteDeleteRequested(recordName string) {
	logger.Info(context.Background(), "remote delete requested", logger.String("record", recordName))
}
func (archiveLogObserver) Warning(msg string) {
	logger.Warn(context.Background(), msg)
}
