package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StorX2-0/iCloud-Backup/library"
)

func snapshotWithAssets(fps ...string) *library.Snapshot {
	snap := library.NewSnapshot()
	for _, fp := range fps {
		snap.Assets[library.Fingerprint(fp)] = &library.Asset{
			Fingerprint: library.Fingerprint(fp),
			Ext:         "jpg",
		}
	}
	return snap
}

func Test_Diff_MinimalAssetSets(t *testing.T) {
	remote := snapshotWithAssets("F1", "F2", "F3")
	local := snapshotWithAssets("F2", "F3", "F4")

	cs := Diff(local, remote)

	require.Len(t, cs.AssetsToAdd, 1)
	assert.Equal(t, library.Fingerprint("F1"), cs.AssetsToAdd[0].Fingerprint)
	assert.Len(t, cs.AssetsToKeep, 2)
	require.Len(t, cs.AssetsToDelete, 1)
	assert.Equal(t, library.Fingerprint("F4"), cs.AssetsToDelete[0])
}

func Test_Diff_ArchivedReferencesSurviveDeletion(t *testing.T) {
	remote := snapshotWithAssets("F1")
	local := snapshotWithAssets("F1", "F2")
	local.Albums["frozen"] = &library.Album{
		UUID:   "frozen",
		Name:   "Holiday 2019",
		Kind:   library.KindArchived,
		Assets: []library.Fingerprint{"F2"},
	}

	cs := Diff(local, remote)

	assert.Empty(t, cs.AssetsToDelete, "archived references must not be deleted")
	assert.Empty(t, cs.AlbumsToDelete, "archived albums never participate in deletion")
}

func Test_Diff_AlbumRenameIsDeletePlusAdd(t *testing.T) {
	local := snapshotWithAssets()
	local.Albums["a"] = &library.Album{UUID: "a", Name: "Old Name", Kind: library.KindAlbum}

	remote := snapshotWithAssets()
	remote.Albums["uuid-1"] = &library.Album{UUID: "uuid-1", Name: "New Name", Kind: library.KindAlbum}

	cs := Diff(local, remote)

	require.Len(t, cs.AlbumsToWrite, 1)
	assert.Equal(t, "New Name", cs.AlbumsToWrite[0].Name)
	require.Len(t, cs.AlbumsToDelete, 1)
	assert.Equal(t, "Old Name", cs.AlbumsToDelete[0].Name)
}

func Test_Diff_UnchangedAlbumIsUntouched(t *testing.T) {
	local := snapshotWithAssets("F1")
	local.Albums["a"] = &library.Album{
		UUID: "a", Name: "Pets", Kind: library.KindAlbum,
		Assets: []library.Fingerprint{"F1"},
	}

	remote := snapshotWithAssets("F1")
	remote.Albums["uuid-7"] = &library.Album{
		UUID: "uuid-7", Name: "Pets", Kind: library.KindAlbum,
		Assets: []library.Fingerprint{"F1"},
	}

	cs := Diff(local, remote)

	assert.Empty(t, cs.AlbumsToWrite)
	assert.Empty(t, cs.AlbumsToDelete)
}

func Test_Diff_ChildrenDeleteBeforeParents(t *testing.T) {
	local := snapshotWithAssets()
	local.Albums["p"] = &library.Album{UUID: "p", Name: "Trips", Kind: library.KindFolder}
	local.Albums["c"] = &library.Album{UUID: "c", Name: "Rome", ParentUUID: "p", Kind: library.KindAlbum}

	cs := Diff(local, snapshotWithAssets())

	require.Len(t, cs.AlbumsToDelete, 2)
	assert.Equal(t, "Rome", cs.AlbumsToDelete[0].Name)
	assert.Equal(t, "Trips", cs.AlbumsToDelete[1].Name)
}
