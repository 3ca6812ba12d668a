package engine

import (
	"sort"
	"strings"

	"github.com/StorX2-0/iCloud-Backup/library"
)

// ChangeSet is the minimal set of writes that reconciles local state with
// remote state.
type ChangeSet struct {
	// Assets, keyed by fingerprint equality.
	AssetsToAdd    []*library.Asset
	AssetsToKeep   []*library.Asset
	AssetsToDelete []library.Fingerprint

	// Albums. Writes are ordered parents-first, deletes children-first.
	AlbumsToWrite  []*library.Album
	AlbumsToDelete []*library.Album

	// Archived albums whose remote parent disappeared this round.
	StrandedArchives []*library.Album
}

// Diff reconciles two snapshots. Archived local albums and their descendants
// never appear in any output set except StrandedArchives; assets referenced
// only by archived albums are exempt from deletion.
func Diff(local, remote *library.Snapshot) *ChangeSet {
	cs := &ChangeSet{}

	for fp, asset := range remote.Assets {
		if _, ok := local.Assets[fp]; ok {
			cs.AssetsToKeep = append(cs.AssetsToKeep, asset)
		} else {
			cs.AssetsToAdd = append(cs.AssetsToAdd, asset)
		}
	}
	archivedRefs := local.ArchivedFingerprints()
	for fp := range local.Assets {
		if _, ok := remote.Assets[fp]; ok {
			continue
		}
		if archivedRefs[fp] {
			continue
		}
		cs.AssetsToDelete = append(cs.AssetsToDelete, fp)
	}

	// Albums compare by path: local album identity is its place in the
	// tree, so a rename or move is a delete plus an add.
	localPaths := make(map[string]*library.Album)
	archivedPaths := make(map[string]bool)
	for _, album := range local.Albums {
		path, ok := local.Path(album)
		if !ok {
			continue
		}
		if local.IsArchivedOrDescendant(album) {
			archivedPaths[path] = true
			continue
		}
		localPaths[path] = album
	}

	blocked := func(path string) bool {
		for p := range archivedPaths {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}

	remotePaths := make(map[string]*library.Album)
	for _, album := range remote.SortedAlbums() {
		path, ok := remote.Path(album)
		if !ok || blocked(path) {
			continue
		}
		remotePaths[path] = album
		existing, ok := localPaths[path]
		if ok && existing.Kind == album.Kind && sameMembers(existing.Assets, album.Assets) {
			continue
		}
		cs.AlbumsToWrite = append(cs.AlbumsToWrite, album)
	}

	for path, album := range localPaths {
		if _, ok := remotePaths[path]; !ok {
			cs.AlbumsToDelete = append(cs.AlbumsToDelete, album)
		}
	}
	// Children before parents for deletion.
	sort.Slice(cs.AlbumsToDelete, func(i, j int) bool {
		pi, _ := local.Path(cs.AlbumsToDelete[i])
		pj, _ := local.Path(cs.AlbumsToDelete[j])
		return len(pi) > len(pj)
	})

	// An archived album whose parent is going away gets relocated before
	// the parent is deleted.
	deletedPaths := make(map[string]bool)
	for _, album := range cs.AlbumsToDelete {
		if p, ok := local.Path(album); ok {
			deletedPaths[p] = true
		}
	}
	for _, album := range local.Albums {
		if album.Kind != library.KindArchived || album.ParentUUID == "" {
			continue
		}
		parent, ok := local.Albums[album.ParentUUID]
		if !ok {
			continue
		}
		if parent.Kind == library.KindArchived {
			continue
		}
		parentPath, ok := local.Path(parent)
		if ok && deletedPaths[parentPath] {
			cs.StrandedArchives = append(cs.StrandedArchives, album)
		}
	}

	return cs
}

func sameMembers(a, b []library.Fingerprint) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[library.Fingerprint]int, len(a))
	for _, fp := range a {
		set[fp]++
	}
	for _, fp := range b {
		if set[fp] == 0 {
			return false
		}
		set[fp]--
	}
	return true
}
