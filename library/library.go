package library

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/utils"
)

const (
	// AllPhotosDir is the unique physical home of every downloaded byte.
	AllPhotosDir = "_All-Photos"
	// ArchiveDir is the holding area for archived albums whose remote
	// parent disappeared.
	ArchiveDir = "_Archive"
	// ArchiveMarker inside a directory marks the subtree as frozen.
	ArchiveMarker = ".archive"
	// LockFileName holds the PID of the process mutating the tree.
	LockFileName = ".library.lock"

	tempPrefix = ".tmp-"
)

// Library reads, writes, and validates the on-disk layout. It is the sole
// source of truth about local state; there is no side database.
type Library struct {
	DataDir string
}

func New(dataDir string) (*Library, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, AllPhotosDir), filepath.Join(dataDir, ArchiveDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperr.Wrap(apperr.KindLibrary, "cannot create data directory", err).With("dir", dir)
		}
	}
	return &Library{DataDir: dataDir}, nil
}

func (l *Library) allPhotosPath() string {
	return filepath.Join(l.DataDir, AllPhotosDir)
}

// AssetPath is the canonical location of an asset's bytes.
func (l *Library) AssetPath(a *Asset) string {
	return filepath.Join(l.allPhotosPath(), a.Filename())
}

// AlbumPath resolves an album to its absolute directory path.
func (l *Library) AlbumPath(s *Snapshot, album *Album) (string, error) {
	rel, ok := s.Path(album)
	if !ok {
		return "", apperr.New(apperr.KindLibrary, "album has a broken parent chain").With("album", album.Name)
	}
	return filepath.Join(l.DataDir, filepath.FromSlash(rel)), nil
}

// ReadSnapshot walks the data directory and produces the local snapshot.
// Stray files, dangling links, and unexpected names are warned about and
// skipped.
func (l *Library) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	if err := l.readAllPhotos(ctx, snap); err != nil {
		return nil, err
	}
	if err := l.readAlbumTree(ctx, snap, l.DataDir, "", ""); err != nil {
		return nil, err
	}
	return snap, nil
}

func (l *Library) readAllPhotos(ctx context.Context, snap *Snapshot) error {
	entries, err := os.ReadDir(l.allPhotosPath())
	if err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot read asset directory", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) {
			// Leftover from an interrupted download.
			logger.Warn(ctx, "removing stale download temp file", logger.String("name", name))
			_ = os.Remove(filepath.Join(l.allPhotosPath(), name))
			continue
		}
		asset, ok := parseAssetFilename(name)
		if !ok || !entry.Type().IsRegular() {
			logger.Warn(ctx, "skipping stray entry in asset directory", logger.String("name", name))
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warn(ctx, "cannot stat asset file", logger.String("name", name), logger.ErrorField(err))
			continue
		}
		asset.Size = info.Size()
		asset.Modified = info.ModTime()
		snap.Assets[asset.Fingerprint] = asset
	}
	return nil
}

func parseAssetFilename(name string) (*Asset, bool) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return nil, false
	}
	fp, err := DecodeFingerprint(name[:dot])
	if err != nil || len(fp) == 0 {
		return nil, false
	}
	return &Asset{Fingerprint: fp, Ext: name[dot+1:]}, true
}

// readAlbumTree recursively discovers album directories. dir is absolute,
// rel is the slash path from the library root ("" at the root).
func (l *Library) readAlbumTree(ctx context.Context, snap *Snapshot, dir, rel, parentUUID string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot read album directory", err).With("dir", dir)
	}

	var album *Album
	if rel != "" {
		album = &Album{
			UUID:       LocalAlbumUUID(rel),
			Name:       filepath.Base(dir),
			ParentUUID: parentUUID,
			Kind:       KindAlbum,
		}
		if hasMarker(dir) || rel == ArchiveDir || strings.HasPrefix(rel, ArchiveDir+"/") {
			album.Kind = KindArchived
		}
		snap.Albums[album.UUID] = album
	}

	for _, entry := range entries {
		name := entry.Name()
		child := filepath.Join(dir, name)
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		switch {
		case rel == "" && (name == AllPhotosDir || name == LockFileName):
			continue
		case name == ArchiveMarker:
			continue
		case entry.IsDir():
			if album != nil && album.Kind == KindAlbum {
				album.Kind = KindFolder
			}
			uuid := parentUUID
			if album != nil {
				uuid = album.UUID
			}
			if err := l.readAlbumTree(ctx, snap, child, childRel, uuid); err != nil {
				return err
			}
		case entry.Type()&os.ModeSymlink != 0:
			fp, ok := l.resolveAssetLink(child)
			if !ok {
				logger.Warn(ctx, "skipping dangling or foreign symlink", logger.String("path", childRel))
				continue
			}
			if album == nil {
				logger.Warn(ctx, "skipping asset link at library root", logger.String("path", childRel))
				continue
			}
			album.Assets = append(album.Assets, fp)
		case album != nil && album.Kind == KindArchived:
			// Archived members are real files; their bytes are owned here.
			continue
		default:
			logger.Warn(ctx, "skipping stray file in album tree", logger.String("path", childRel))
		}
	}

	if album != nil && album.Kind == KindFolder && len(album.Assets) > 0 {
		logger.Warn(ctx, "directory mixes albums and assets, treating as folder",
			logger.String("album", album.Name))
		album.Assets = nil
	}
	return nil
}

// resolveAssetLink follows a symlink and, when it lands inside _All-Photos,
// returns the fingerprint encoded in the target filename.
func (l *Library) resolveAssetLink(linkPath string) (Fingerprint, bool) {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(linkPath), target)
	}
	target = filepath.Clean(target)
	if filepath.Dir(target) != l.allPhotosPath() {
		return "", false
	}
	if _, err := os.Stat(target); err != nil {
		return "", false
	}
	asset, ok := parseAssetFilename(filepath.Base(target))
	if !ok {
		return "", false
	}
	return asset.Fingerprint, true
}

// WriteAsset places bytes under _All-Photos atomically: the stream goes to a
// dot-prefixed temp in the same directory, then a rename to the fingerprint
// filename.
func (l *Library) WriteAsset(ctx context.Context, a *Asset, r io.Reader) error {
	final := l.AssetPath(a)
	tmp := filepath.Join(l.allPhotosPath(), tempPrefix+utils.RandStringRunes(12))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot create temp file", err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return apperr.Wrap(apperr.KindLibrary, "asset write failed", err).With("asset", a.Filename())
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return apperr.Wrap(apperr.KindLibrary, "asset rename failed", err).With("asset", a.Filename())
	}
	return nil
}

// DeleteAsset removes the asset file, but only if no album link still points
// at it.
func (l *Library) DeleteAsset(ctx context.Context, fp Fingerprint) error {
	path, ok := l.findAssetFile(fp)
	if !ok {
		return nil
	}
	referenced, err := l.assetReferenced(fp)
	if err != nil {
		return err
	}
	if referenced {
		logger.Warn(ctx, "asset still linked from an album, keeping bytes",
			logger.String("fingerprint", fp.Encode()))
		return nil
	}
	if err := os.Remove(path); err != nil {
		return apperr.Wrap(apperr.KindLibrary, "asset delete failed", err).With("fingerprint", fp.Encode())
	}
	return nil
}

func (l *Library) findAssetFile(fp Fingerprint) (string, bool) {
	entries, err := os.ReadDir(l.allPhotosPath())
	if err != nil {
		return "", false
	}
	stem := fp.Encode()
	for _, entry := range entries {
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == stem {
			return filepath.Join(l.allPhotosPath(), name), true
		}
	}
	return "", false
}

func (l *Library) assetReferenced(fp Fingerprint) (bool, error) {
	referenced := false
	err := filepath.WalkDir(l.DataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && filepath.Base(path) == AllPhotosDir {
			return filepath.SkipDir
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		if got, ok := l.resolveAssetLink(path); ok && got == fp {
			referenced = true
			return io.EOF
		}
		return nil
	})
	if err == io.EOF {
		err = nil
	}
	return referenced, err
}

// WriteAlbum creates the album directory (and parents) and replaces its
// entries with fresh symlinks into _All-Photos. Archived albums are never
// touched.
func (l *Library) WriteAlbum(ctx context.Context, s *Snapshot, album *Album) error {
	if album.Kind == KindArchived {
		return nil
	}
	dir, err := l.AlbumPath(s, album)
	if err != nil {
		return err
	}
	if hasMarker(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot create album directory", err).With("album", album.Name)
	}
	if album.Kind == KindFolder {
		return nil
	}

	// Remove existing membership links; fresh state comes from the snapshot.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot read album directory", err).With("album", album.Name)
	}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return apperr.Wrap(apperr.KindLibrary, "cannot clear album link", err).With("album", album.Name)
			}
		}
	}

	relTarget, err := filepath.Rel(dir, l.allPhotosPath())
	if err != nil {
		relTarget = l.allPhotosPath()
	}
	for _, fp := range album.Assets {
		asset, ok := s.Assets[fp]
		if !ok {
			logger.Warn(ctx, "album references unknown asset, skipping link",
				logger.String("album", album.Name), logger.String("fingerprint", fp.Encode()))
			continue
		}
		linkName := asset.LinkName()
		linkPath := filepath.Join(dir, linkName)
		if _, err := os.Lstat(linkPath); err == nil {
			// Duplicate original filenames within one album.
			linkPath = filepath.Join(dir, fp.Encode()+"-"+linkName)
		}
		if err := os.Symlink(filepath.Join(relTarget, asset.Filename()), linkPath); err != nil {
			return apperr.Wrap(apperr.KindLibrary, "cannot create album link", err).
				With("album", album.Name).With("link", linkName)
		}
	}
	return nil
}

// DeleteAlbum removes the album directory. Archived subtrees are refused.
func (l *Library) DeleteAlbum(ctx context.Context, s *Snapshot, album *Album) error {
	if album.Kind == KindArchived {
		return nil
	}
	dir, err := l.AlbumPath(s, album)
	if err != nil {
		return err
	}
	archived, err := containsArchived(dir)
	if err != nil {
		return err
	}
	if archived {
		logger.Warn(ctx, "album shelters an archived subtree, not deleting",
			logger.String("album", album.Name))
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return apperr.Wrap(apperr.KindLibrary, "album delete failed", err).With("album", album.Name)
	}
	return nil
}

// MoveStrandedArchive relocates an archived album whose remote parent has
// disappeared under _Archive/.
func (l *Library) MoveStrandedArchive(ctx context.Context, s *Snapshot, album *Album) error {
	if album.Kind != KindArchived {
		return apperr.New(apperr.KindLibrary, "album is not archived").With("album", album.Name)
	}
	src, err := l.AlbumPath(s, album)
	if err != nil {
		return err
	}
	dst := filepath.Join(l.DataDir, ArchiveDir, album.Name)
	for i := 2; ; i++ {
		if _, err := os.Lstat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(l.DataDir, ArchiveDir, fmt.Sprintf("%s-%d", album.Name, i))
	}
	if err := os.Rename(src, dst); err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot move stranded archive", err).With("album", album.Name)
	}
	logger.Info(ctx, "moved stranded archived album",
		logger.String("album", album.Name), logger.String("to", dst))
	return nil
}

// VerifyLayout re-checks the invariants after a write pass: every symlink
// resolves inside _All-Photos and no two assets share a fingerprint stem.
// Violations come back as warnings.
func (l *Library) VerifyLayout(ctx context.Context) []string {
	warnings := utils.NewLockedArray()

	stems := make(map[string]string)
	entries, _ := os.ReadDir(l.allPhotosPath())
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, dup := stems[stem]; dup {
			warnings.Add(fmt.Sprintf("duplicate fingerprint stem: %s and %s", prev, name))
		}
		stems[stem] = name
	}

	_ = filepath.WalkDir(l.DataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && filepath.Base(path) == AllPhotosDir {
			return filepath.SkipDir
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		if _, ok := l.resolveAssetLink(path); !ok {
			rel, _ := filepath.Rel(l.DataDir, path)
			warnings.Add(fmt.Sprintf("symlink does not resolve into %s: %s", AllPhotosDir, rel))
		}
		return nil
	})

	for _, w := range warnings.Get() {
		logger.Warn(ctx, "layout check", logger.String("problem", w))
	}
	return warnings.Get()
}

func hasMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ArchiveMarker))
	return err == nil
}

func containsArchived(dir string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && filepath.Base(path) == ArchiveMarker {
			found = true
			return io.EOF
		}
		return nil
	})
	if err == io.EOF {
		err = nil
	}
	return found, err
}
