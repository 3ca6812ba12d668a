package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/monitor"
	"github.com/StorX2-0/iCloud-Backup/pkg/utils"
)

var mon = monitor.Mon

// Observer receives archive progress at defined points.
type Observer interface {
	AssetPersisted(name string)
	Archived(path string, assets int)
	RemoteDeleteRequested(recordName string)
	Warning(msg string)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) AssetPersisted(string)        {}
func (NopObserver) Archived(string, int)         {}
func (NopObserver) RemoteDeleteRequested(string) {}
func (NopObserver) Warning(string)               {}

// RemoteDeleter is the slice of the remote client archiving needs.
type RemoteDeleter interface {
	DeleteAssets(ctx context.Context, recordNames []string) error
}

// Engine freezes local subtrees so future syncs ignore them.
type Engine struct {
	lib    *library.Library
	remote RemoteDeleter
	obs    Observer
}

func New(lib *library.Library, remote RemoteDeleter, obs Observer) *Engine {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Engine{lib: lib, remote: remote, obs: obs}
}

// ArchivePath freezes the album at target: every membership link is replaced
// by a copy of the asset bytes so the directory becomes self-contained, then
// the archive marker is dropped. With remoteDelete set, the non-favorite
// remote originals are deleted upstream; favorites never are.
func (e *Engine) ArchivePath(ctx context.Context, target string, remoteAssets map[library.Fingerprint]*library.Asset, remoteDelete bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	dir, err := e.resolveTarget(target)
	if err != nil {
		return err
	}

	fingerprints, err := e.persistMembers(ctx, dir)
	if err != nil {
		return err
	}

	marker := filepath.Join(dir, library.ArchiveMarker)
	if err := os.WriteFile(marker, []byte{}, 0644); err != nil {
		return apperr.Wrap(apperr.KindArchive, "cannot write archive marker", err).With("path", target)
	}
	e.obs.Archived(target, len(fingerprints))
	logger.Info(ctx, "album archived",
		logger.String("path", target), logger.Int("assets", len(fingerprints)))

	if !remoteDelete {
		return nil
	}
	return e.deleteRemote(ctx, fingerprints, remoteAssets)
}

// resolveTarget validates that target is an archivable album directory
// inside the library.
func (e *Engine) resolveTarget(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", apperr.Wrap(apperr.KindArchive, "cannot resolve archive path", err)
	}
	dataDir, err := filepath.Abs(e.lib.DataDir)
	if err != nil {
		return "", apperr.Wrap(apperr.KindArchive, "cannot resolve data directory", err)
	}
	if abs == dataDir || !strings.HasPrefix(abs, dataDir+string(os.PathSeparator)) {
		return "", apperr.New(apperr.KindArchive, "path is outside the library").With("path", target)
	}
	rel, _ := filepath.Rel(dataDir, abs)
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	if first == library.AllPhotosDir {
		return "", apperr.New(apperr.KindArchive, "the asset directory cannot be archived")
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", apperr.New(apperr.KindArchive, "path is not an album directory").With("path", target)
	}

	// Already frozen, here or above.
	for p := abs; strings.HasPrefix(p, dataDir); p = filepath.Dir(p) {
		if _, err := os.Stat(filepath.Join(p, library.ArchiveMarker)); err == nil {
			return "", apperr.New(apperr.KindArchive, "path is already archived").With("path", target)
		}
	}
	return abs, nil
}

// persistMembers replaces every membership symlink under dir with the asset
// bytes it points at. Partial failure is fatal; it leaves a mixed state the
// user must inspect.
func (e *Engine) persistMembers(ctx context.Context, dir string) ([]library.Fingerprint, error) {
	type member struct {
		linkPath string
		fp       library.Fingerprint
	}
	var members []member

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		asset, ok := parseFingerprint(filepath.Base(target))
		if !ok {
			logger.Warn(ctx, "skipping foreign symlink during archive", logger.String("path", path))
			return nil
		}
		members = append(members, member{linkPath: path, fp: asset})
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArchive, "cannot scan album members", err)
	}

	fingerprints := utils.ListUpdate(members, func(m member) library.Fingerprint { return m.fp })

	for _, m := range members {
		if err := e.persistOne(m.linkPath); err != nil {
			return nil, apperr.Wrap(apperr.KindArchive, "partial archive, album left in mixed state", err).
				With("link", m.linkPath)
		}
		e.obs.AssetPersisted(filepath.Base(m.linkPath))
	}
	return fingerprints, nil
}

// persistOne swaps one symlink for the bytes of its target.
func (e *Engine) persistOne(linkPath string) error {
	target, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		return err
	}
	src, err := os.Open(target)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := linkPath + ".persist"
	dst, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Remove(linkPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, linkPath)
}

// deleteRemote removes the non-favorite originals upstream, one request per
// record. Failures are reported but never reverse the local archive.
func (e *Engine) deleteRemote(ctx context.Context, fingerprints []library.Fingerprint, remoteAssets map[library.Fingerprint]*library.Asset) error {
	var group apperr.Group
	for _, fp := range fingerprints {
		asset, ok := remoteAssets[fp]
		if !ok {
			continue
		}
		if asset.Favorite {
			msg := "keeping favorite in the cloud: " + asset.OrigName
			e.obs.Warning(msg)
			logger.Warn(ctx, "favorite asset is never deleted remotely",
				logger.String("asset", asset.OrigName))
			continue
		}
		if err := e.remote.DeleteAssets(ctx, []string{asset.RecordName}); err != nil {
			e.obs.Warning("remote delete failed for " + asset.OrigName)
			logger.Warn(ctx, "remote delete failed",
				logger.String("record", asset.RecordName), logger.ErrorField(err))
			group.Add(err)
			continue
		}
		e.obs.RemoteDeleteRequested(asset.RecordName)
	}
	if err := group.Err(); err != nil {
		// The local archive stands; the failures were reported above.
		logger.Warn(ctx, "some remote deletions failed", logger.ErrorField(err))
	}
	return nil
}

func parseFingerprint(filename string) (library.Fingerprint, bool) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	fp, err := library.DecodeFingerprint(stem)
	if err != nil || len(fp) == 0 {
		return "", false
	}
	return fp, true
}
