package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
)

// fakeRemote serves a fixed snapshot and writes asset stand-in bytes. Until
// refreshed, it rejects the Nth and every later download with an
// expired-session error.
type fakeRemote struct {
	mu        sync.Mutex
	snapshot  *library.Snapshot
	failAt    int
	healthy   bool
	downloads int
}

func (f *fakeRemote) FetchAll(ctx context.Context) (*library.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeRemote) DownloadAsset(ctx context.Context, asset *library.Asset, destPath string) error {
	f.mu.Lock()
	f.downloads++
	n := f.downloads
	healthy := f.healthy
	f.mu.Unlock()

	if !healthy && n >= f.failAt {
		return apperr.Recoverable(apperr.KindAuth, "photo service session expired", nil)
	}
	return os.WriteFile(destPath, []byte(asset.Fingerprint), 0644)
}

func (f *fakeRemote) DeleteAssets(ctx context.Context, recordNames []string) error {
	return nil
}

type fakeAuth struct {
	mu        sync.Mutex
	refreshes int
	remote    *fakeRemote
}

func (f *fakeAuth) Authenticate(ctx context.Context) error { return nil }

func (f *fakeAuth) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.remote.mu.Lock()
	f.remote.healthy = true
	f.remote.mu.Unlock()
	return nil
}

func remoteWith(n int) *library.Snapshot {
	snap := library.NewSnapshot()
	album := &library.Album{UUID: "album-1", Name: "Everything", Kind: library.KindAlbum}
	for i := 0; i < n; i++ {
		fp := library.Fingerprint(fmt.Sprintf("fingerprint-%02d", i))
		snap.Assets[fp] = &library.Asset{
			RecordName:  fmt.Sprintf("rec-%02d", i),
			Fingerprint: fp,
			Size:        int64(len(fp)),
			OrigName:    fmt.Sprintf("IMG_%02d.JPG", i),
			Ext:         "jpg",
			DownloadURL: "https://example.invalid/asset",
		}
		album.Assets = append(album.Assets, fp)
	}
	snap.Albums[album.UUID] = album
	return snap
}

func Test_Engine_RecoverableFailureRetriesOnce(t *testing.T) {
	lib, err := library.New(t.TempDir())
	require.NoError(t, err)

	remote := &fakeRemote{snapshot: remoteWith(20), failAt: 7}
	authn := &fakeAuth{remote: remote}
	eng := New(lib, remote, authn, nil, Options{MaxRetries: 3, DownloadThreads: 4})

	require.NoError(t, eng.Sync(context.Background()))
	assert.Equal(t, 1, authn.refreshes, "one session refresh expected")

	snap, err := lib.ReadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Assets, 20, "all assets present after the retry round")
	for fp, asset := range snap.Assets {
		data, err := os.ReadFile(lib.AssetPath(asset))
		require.NoError(t, err)
		assert.Equal(t, string(fp), string(data))
	}
	assert.Empty(t, lib.VerifyLayout(context.Background()))
}

func Test_Engine_FatalErrorSkipsRetry(t *testing.T) {
	lib, err := library.New(t.TempDir())
	require.NoError(t, err)

	remote := &fatalRemote{}
	authn := &fakeAuth{remote: &fakeRemote{}}
	eng := New(lib, remote, authn, nil, Options{MaxRetries: 3})

	err = eng.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, authn.refreshes)
}

type fatalRemote struct{}

func (fatalRemote) FetchAll(ctx context.Context) (*library.Snapshot, error) {
	return nil, apperr.New(apperr.KindSync, "malformed record")
}
func (fatalRemote) DownloadAsset(ctx context.Context, asset *library.Asset, destPath string) error {
	return nil
}
func (fatalRemote) DeleteAssets(ctx context.Context, recordNames []string) error {
	return nil
}

func Test_Engine_SyncConvergesToRemote(t *testing.T) {
	lib, err := library.New(t.TempDir())
	require.NoError(t, err)

	remote := &fakeRemote{snapshot: remoteWith(5), healthy: true}
	eng := New(lib, remote, &fakeAuth{remote: remote}, nil, Options{DownloadThreads: 2})
	require.NoError(t, eng.Sync(context.Background()))

	// A second sync over converged state is a no-op diff.
	local, err := lib.ReadSnapshot(context.Background())
	require.NoError(t, err)
	cs := Diff(local, remote.snapshot)
	assert.Empty(t, cs.AssetsToAdd)
	assert.Empty(t, cs.AssetsToDelete)
	assert.Empty(t, cs.AlbumsToWrite)
	assert.Empty(t, cs.AlbumsToDelete)
}
