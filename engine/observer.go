package engine

// SyncObserver receives sync progress at defined points. Progress for asset
// downloads arrives in completion order, not submission order.
type SyncObserver interface {
	SyncStarted(attempt int)
	SnapshotLoaded(localAssets, remoteAssets int)
	DiffComputed(toAdd, toKeep, toDelete int)
	AssetDownloaded(name string, size int64)
	AssetDeleted(name string)
	SyncCompleted(added, deleted int)
	Warning(msg string)
}

// NopSyncObserver ignores everything.
type NopSyncObserver struct{}

func (NopSyncObserver) SyncStarted(int)            {}
func (NopSyncObserver) SnapshotLoaded(int, int)    {}
func (NopSyncObserver) DiffComputed(int, int, int) {}
func (NopSyncObserver) AssetDownloaded(string, int64) {}
func (NopSyncObserver) AssetDeleted(string)        {}
func (NopSyncObserver) SyncCompleted(int, int)     {}
func (NopSyncObserver) Warning(string)             {}
