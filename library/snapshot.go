package library

import (
	"encoding/base64"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fingerprint is the opaque content address the photo service assigns to an
// asset. Equal fingerprints mean byte-identical assets.
type Fingerprint string

// Encode returns the filesystem-safe form used as the filename stem.
func (f Fingerprint) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(f))
}

// DecodeFingerprint parses a filename stem back into a fingerprint.
func DecodeFingerprint(stem string) (Fingerprint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(stem)
	if err != nil {
		return "", err
	}
	return Fingerprint(raw), nil
}

// Asset is a single media artifact, original or edited.
type Asset struct {
	RecordName  string
	Fingerprint Fingerprint
	Size        int64
	OrigName    string
	Modified    time.Time
	Favorite    bool
	Edited      bool
	Ext         string
	DownloadURL string
}

// Filename is the content-addressed name the asset lives under in _All-Photos.
func (a *Asset) Filename() string {
	return a.Fingerprint.Encode() + "." + a.Ext
}

// LinkName is the human-readable name used for album membership links.
func (a *Asset) LinkName() string {
	name := a.OrigName
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem = a.Fingerprint.Encode()
	}
	if a.Edited {
		stem += "-edited"
	}
	return stem + "." + a.Ext
}

// AlbumKind distinguishes the three node flavors of the album tree.
type AlbumKind int

const (
	// KindAlbum holds asset members, never album children.
	KindAlbum AlbumKind = iota
	// KindFolder holds album/folder children, never asset members.
	KindFolder
	// KindArchived marks a locally frozen subtree with no remote counterpart.
	KindArchived
)

func (k AlbumKind) String() string {
	switch k {
	case KindAlbum:
		return "album"
	case KindFolder:
		return "folder"
	case KindArchived:
		return "archived"
	}
	return "unknown"
}

// Album is a named container of assets (kind album) or of other albums
// (kind folder). ParentUUID is empty for roots.
type Album struct {
	UUID       string
	Name       string
	ParentUUID string
	Kind       AlbumKind
	Assets     []Fingerprint
}

// Snapshot is the complete set of assets, albums, and the parent relation
// at a point in time. Local and remote snapshots share this schema.
type Snapshot struct {
	Assets map[Fingerprint]*Asset
	Albums map[string]*Album
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Assets: make(map[Fingerprint]*Asset),
		Albums: make(map[string]*Album),
	}
}

// Path returns the album's slash-separated path from the library root.
// Returns false when the parent chain is broken.
func (s *Snapshot) Path(album *Album) (string, bool) {
	parts := []string{album.Name}
	for album.ParentUUID != "" {
		parent, ok := s.Albums[album.ParentUUID]
		if !ok {
			return "", false
		}
		parts = append([]string{parent.Name}, parts...)
		album = parent
	}
	return path.Join(parts...), true
}

// Children returns the direct child albums of the given UUID ("" for roots)
// in stable name order.
func (s *Snapshot) Children(parentUUID string) []*Album {
	var out []*Album
	for _, a := range s.Albums {
		if a.ParentUUID == parentUUID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SortedAlbums returns all albums parents-first, children of the same parent
// in name order. Albums with broken parent chains are left out.
func (s *Snapshot) SortedAlbums() []*Album {
	var out []*Album
	var walk func(parentUUID string)
	walk = func(parentUUID string) {
		for _, a := range s.Children(parentUUID) {
			out = append(out, a)
			walk(a.UUID)
		}
	}
	walk("")
	return out
}

// IsArchivedOrDescendant reports whether the album or any ancestor is archived.
func (s *Snapshot) IsArchivedOrDescendant(album *Album) bool {
	for album != nil {
		if album.Kind == KindArchived {
			return true
		}
		if album.ParentUUID == "" {
			return false
		}
		album = s.Albums[album.ParentUUID]
	}
	return false
}

// ArchivedFingerprints is the set of fingerprints referenced by archived
// albums; those assets survive remote deletion.
func (s *Snapshot) ArchivedFingerprints() map[Fingerprint]bool {
	out := make(map[Fingerprint]bool)
	for _, a := range s.Albums {
		if !s.IsArchivedOrDescendant(a) {
			continue
		}
		for _, fp := range a.Assets {
			out[fp] = true
		}
	}
	return out
}

// localAlbumNamespace derives stable UUIDs for albums discovered on disk,
// where no remote identifier survives. Two reads of the same tree agree.
var localAlbumNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("icloud-backup/album-path"))

// LocalAlbumUUID derives the UUID of an on-disk album from its library path.
func LocalAlbumUUID(relPath string) string {
	return uuid.NewSHA1(localAlbumNamespace, []byte(relPath)).String()
}
