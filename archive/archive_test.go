package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StorX2-0/iCloud-Backup/library"
)

type fakeDeleter struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeDeleter) DeleteAssets(ctx context.Context, recordNames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordNames)
	return nil
}

type recordingObserver struct {
	NopObserver
	warnings []string
}

func (o *recordingObserver) Warning(msg string) { o.warnings = append(o.warnings, msg) }

// setupAlbum materializes a five-asset album, two of them favorites.
func setupAlbum(t *testing.T) (*library.Library, string, map[library.Fingerprint]*library.Asset) {
	t.Helper()
	lib, err := library.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	names := []string{"one", "two", "three", "four", "five"}
	remoteAssets := make(map[library.Fingerprint]*library.Asset)
	snap := library.NewSnapshot()
	album := &library.Album{UUID: "a1", Name: "Holiday", Kind: library.KindAlbum}

	for i, name := range names {
		asset := &library.Asset{
			RecordName:  "rec-" + name,
			Fingerprint: library.Fingerprint("fp-" + name),
			OrigName:    name + ".jpg",
			Ext:         "jpg",
			Favorite:    i < 2,
			Size:        int64(len(name)),
		}
		require.NoError(t, lib.WriteAsset(ctx, asset, bytes.NewReader([]byte(name))))
		snap.Assets[asset.Fingerprint] = asset
		album.Assets = append(album.Assets, asset.Fingerprint)
		remoteAssets[asset.Fingerprint] = asset
	}
	snap.Albums[album.UUID] = album
	require.NoError(t, lib.WriteAlbum(ctx, snap, album))

	return lib, filepath.Join(lib.DataDir, "Holiday"), remoteAssets
}

func Test_Archive_WithFavoritesAndRemoteDelete(t *testing.T) {
	lib, albumDir, remoteAssets := setupAlbum(t)
	deleter := &fakeDeleter{}
	obs := &recordingObserver{}
	eng := New(lib, deleter, obs)

	require.NoError(t, eng.ArchivePath(context.Background(), albumDir, remoteAssets, true))

	// All five members are real files now, not links.
	entries, err := os.ReadDir(albumDir)
	require.NoError(t, err)
	files := 0
	for _, e := range entries {
		if e.Name() == library.ArchiveMarker {
			continue
		}
		require.Zero(t, e.Type()&os.ModeSymlink, "member %s must be persisted", e.Name())
		files++
	}
	assert.Equal(t, 5, files)

	_, err = os.Stat(filepath.Join(albumDir, library.ArchiveMarker))
	assert.NoError(t, err, "archive marker present")

	// Three non-favorites deleted remotely, one call each.
	assert.Len(t, deleter.calls, 3)

	// Two warnings naming the favorites.
	require.Len(t, obs.warnings, 2)
	assert.Contains(t, obs.warnings[0], "favorite")
}

func Test_Archive_WithoutRemoteDelete(t *testing.T) {
	lib, albumDir, remoteAssets := setupAlbum(t)
	deleter := &fakeDeleter{}
	eng := New(lib, deleter, nil)

	require.NoError(t, eng.ArchivePath(context.Background(), albumDir, remoteAssets, false))
	assert.Empty(t, deleter.calls)
}

func Test_Archive_RefusesBadTargets(t *testing.T) {
	lib, albumDir, remoteAssets := setupAlbum(t)
	eng := New(lib, &fakeDeleter{}, nil)
	ctx := context.Background()

	assert.Error(t, eng.ArchivePath(ctx, filepath.Join(lib.DataDir, library.AllPhotosDir), remoteAssets, false),
		"the asset directory is not archivable")
	assert.Error(t, eng.ArchivePath(ctx, t.TempDir(), remoteAssets, false),
		"paths outside the library are refused")
	assert.Error(t, eng.ArchivePath(ctx, lib.DataDir, remoteAssets, false),
		"the library root is not archivable")

	require.NoError(t, eng.ArchivePath(ctx, albumDir, remoteAssets, false))
	assert.Error(t, eng.ArchivePath(ctx, albumDir, remoteAssets, false),
		"archiving twice is refused")
}

func Test_Archive_PersistedBytesMatchOriginals(t *testing.T) {
	lib, albumDir, remoteAssets := setupAlbum(t)
	eng := New(lib, &fakeDeleter{}, nil)

	require.NoError(t, eng.ArchivePath(context.Background(), albumDir, remoteAssets, false))

	for _, asset := range remoteAssets {
		data, err := os.ReadFile(filepath.Join(albumDir, asset.LinkName()))
		require.NoError(t, err)
		assert.Equal(t, string(asset.Fingerprint)[3:], string(data),
			"persisted bytes equal the library copy")
	}
}
