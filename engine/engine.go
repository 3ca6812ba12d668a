package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/monitor"
	"github.com/StorX2-0/iCloud-Backup/pkg/worker"
)

var mon = monitor.Mon

// Remote is the replaceable port to the photo service.
type Remote interface {
	FetchAll(ctx context.Context) (*library.Snapshot, error)
	DownloadAsset(ctx context.Context, asset *library.Asset, destPath string) error
	DeleteAssets(ctx context.Context, recordNames []string) error
}

// Authenticator drives the auth session the engine leans on.
type Authenticator interface {
	Authenticate(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Options tune the pipeline.
type Options struct {
	MaxRetries      int
	DownloadThreads int
	// PerAssetRetries bounds integrity-mismatch retries for one asset.
	PerAssetRetries int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.DownloadThreads <= 0 {
		out.DownloadThreads = 16
	}
	if out.PerAssetRetries <= 0 {
		out.PerAssetRetries = 3
	}
	return out
}

// Engine orchestrates fetch, diff, and write with an outer retry loop.
type Engine struct {
	lib    *library.Library
	remote Remote
	auth   Authenticator
	obs    SyncObserver
	opts   Options
}

func New(lib *library.Library, remote Remote, auth Authenticator, obs SyncObserver, opts Options) *Engine {
	if obs == nil {
		obs = NopSyncObserver{}
	}
	return &Engine{lib: lib, remote: remote, auth: auth, obs: obs, opts: opts.withDefaults()}
}

// Sync runs the three-phase pipeline. Recoverable failures refresh the auth
// session and restart from the fetch phase, at most MaxRetries times; fatal
// errors and interrupts pass straight through.
func (e *Engine) Sync(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	monitor.M().SyncRuns.Inc()
	started := time.Now()

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxRetries+1; attempt++ {
		e.obs.SyncStarted(attempt)
		lastErr = e.runOnce(ctx)
		if lastErr == nil {
			monitor.M().SyncDuration.Observe(time.Since(started).Seconds())
			return nil
		}
		if apperr.IsInterrupt(lastErr) || !apperr.IsRecoverable(lastErr) {
			return lastErr
		}
		if attempt > e.opts.MaxRetries {
			break
		}

		logger.Warn(ctx, "sync round failed, refreshing session and retrying",
			logger.Int("attempt", attempt), logger.ErrorField(lastErr))
		monitor.M().SyncRetries.Inc()
		if rerr := e.auth.Refresh(ctx); rerr != nil {
			if apperr.IsInterrupt(rerr) || !apperr.IsRecoverable(rerr) {
				return rerr
			}
			lastErr = rerr
		}
	}
	return apperr.Wrap(apperr.KindSync, "retries exhausted", lastErr).
		With("attempts", e.opts.MaxRetries+1)
}

func (e *Engine) runOnce(ctx context.Context) error {
	if err := e.auth.Authenticate(ctx); err != nil {
		return err
	}

	// Phase 1: fetch-and-load, both sides in parallel.
	var local, remote *library.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		local, err = e.lib.ReadSnapshot(gctx)
		return err
	})
	g.Go(func() (err error) {
		remote, err = e.remote.FetchAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	e.obs.SnapshotLoaded(len(local.Assets), len(remote.Assets))
	logger.Info(ctx, "snapshots loaded",
		logger.Int("local_assets", len(local.Assets)),
		logger.Int("remote_assets", len(remote.Assets)),
		logger.Int("local_albums", len(local.Albums)),
		logger.Int("remote_albums", len(remote.Albums)))

	// Phase 2: diff.
	cs := Diff(local, remote)
	e.obs.DiffComputed(len(cs.AssetsToAdd), len(cs.AssetsToKeep), len(cs.AssetsToDelete))
	logger.Info(ctx, "change set computed",
		logger.Int("assets_add", len(cs.AssetsToAdd)),
		logger.Int("assets_keep", len(cs.AssetsToKeep)),
		logger.Int("assets_delete", len(cs.AssetsToDelete)),
		logger.Int("albums_write", len(cs.AlbumsToWrite)),
		logger.Int("albums_delete", len(cs.AlbumsToDelete)))

	// Phase 3a: assets. Adds strictly precede deletes so a rename by
	// fingerprint cannot race.
	if err := e.writeAssets(ctx, cs); err != nil {
		return err
	}
	for _, fp := range cs.AssetsToDelete {
		if err := e.lib.DeleteAsset(ctx, fp); err != nil {
			return err
		}
		monitor.M().AssetsDeleted.Inc()
		e.obs.AssetDeleted(fp.Encode())
	}

	// Phase 3b: albums. Stranded archives move aside first, then deletes
	// children-first, then writes parents-first.
	for _, album := range cs.StrandedArchives {
		if err := e.lib.MoveStrandedArchive(ctx, local, album); err != nil {
			return err
		}
	}
	for _, album := range cs.AlbumsToDelete {
		if err := e.lib.DeleteAlbum(ctx, local, album); err != nil {
			return err
		}
	}
	for _, album := range cs.AlbumsToWrite {
		if err := e.lib.WriteAlbum(ctx, remote, album); err != nil {
			return err
		}
	}

	for _, w := range e.lib.VerifyLayout(ctx) {
		e.obs.Warning(w)
	}

	e.obs.SyncCompleted(len(cs.AssetsToAdd), len(cs.AssetsToDelete))
	return nil
}

// writeAssets drains the add list through a bounded download pool. The first
// error cancels the pool; in-flight downloads drain and remove their temp
// files.
func (e *Engine) writeAssets(ctx context.Context, cs *ChangeSet) error {
	if len(cs.AssetsToAdd) == 0 {
		return nil
	}

	pool := worker.NewWorkerPool(ctx, e.opts.DownloadThreads)
	for _, asset := range cs.AssetsToAdd {
		asset := asset
		if err := pool.Submit(func(taskCtx context.Context) error {
			return e.downloadOne(taskCtx, asset)
		}); err != nil {
			break
		}
	}

	errors := pool.Wait()
	if len(errors) == 0 {
		if err := ctx.Err(); err != nil {
			return apperr.Interrupted(err)
		}
		return nil
	}
	return errors[0]
}

// downloadOne fetches a single asset, absorbing integrity mismatches up to
// the per-asset retry budget. Auth and transport failures escalate to the
// outer retry loop immediately.
func (e *Engine) downloadOne(ctx context.Context, asset *library.Asset) error {
	dest := e.lib.AssetPath(asset)

	var err error
	for try := 1; try <= e.opts.PerAssetRetries; try++ {
		err = e.remote.DownloadAsset(ctx, asset, dest)
		if err == nil {
			monitor.M().AssetsAdded.Inc()
			monitor.M().BytesDownloaded.Add(float64(asset.Size))
			e.obs.AssetDownloaded(asset.LinkName(), asset.Size)
			return nil
		}
		if !apperr.IsKind(err, apperr.KindSync) || !apperr.IsRecoverable(err) {
			return err
		}
		logger.Warn(ctx, "asset integrity mismatch, retrying",
			logger.String("record", asset.RecordName), logger.Int("try", try))
	}
	// Per-asset budget exhausted; this is no longer recoverable.
	// The cause is flattened to plain text so its recoverable mark does not
	// carry over.
	return apperr.Wrap(apperr.KindSync, "asset failed integrity verification repeatedly", errors.New(err.Error())).
		With("record", asset.RecordName)
}
