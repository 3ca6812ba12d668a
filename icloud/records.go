package icloud

import (
	"encoding/base64"
	"encoding/json"
	"path"
	"strings"

	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
)

// Record types of the photo service record zones.
const (
	recordTypeAlbum    = "CPLAlbum"
	recordTypeMaster   = "CPLMaster"
	recordTypeAsset    = "CPLAsset"
	recordTypeRelation = "CPLContainerRelationLiveByAssetDate"
)

// Album kinds on the wire.
const (
	albumTypeAlbum  = 0
	albumTypeFolder = 3
)

type recordField struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

type record struct {
	RecordName string                 `json:"recordName"`
	RecordType string                 `json:"recordType"`
	Fields     map[string]recordField `json:"fields"`
}

type assetResource struct {
	FileChecksum string `json:"fileChecksum"`
	Size         int64  `json:"size"`
	DownloadURL  string `json:"downloadURL"`
}

func (r record) stringField(name string) string {
	f, ok := r.Fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err != nil {
		return ""
	}
	return s
}

func (r record) int64Field(name string) int64 {
	f, ok := r.Fields[name]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(f.Value, &n); err != nil {
		return 0
	}
	return n
}

// base64Field decodes the *Enc fields the service ships base64-wrapped.
func (r record) base64Field(name string) string {
	raw, err := base64.StdEncoding.DecodeString(r.stringField(name))
	if err != nil {
		return ""
	}
	return string(raw)
}

func (r record) resourceField(name string) (assetResource, bool) {
	f, ok := r.Fields[name]
	if !ok {
		return assetResource{}, false
	}
	var res assetResource
	if err := json.Unmarshal(f.Value, &res); err != nil {
		return assetResource{}, false
	}
	return res, res.FileChecksum != ""
}

// parseAlbum converts a CPLAlbum record. Service-side deleted albums and
// system albums come back nil.
func parseAlbum(r record) (*library.Album, error) {
	if r.int64Field("isDeleted") != 0 {
		return nil, nil
	}
	name := r.base64Field("albumNameEnc")
	if name == "" {
		return nil, apperr.New(apperr.KindSync, "album record carries no name").
			With("record", r.RecordName)
	}

	kind := library.KindAlbum
	switch r.int64Field("albumType") {
	case albumTypeAlbum:
		kind = library.KindAlbum
	case albumTypeFolder:
		kind = library.KindFolder
	default:
		// Smart albums and other service-side constructs are not mirrored.
		return nil, nil
	}

	return &library.Album{
		UUID:       r.RecordName,
		Name:       sanitizeName(name),
		ParentUUID: r.stringField("parentId"),
		Kind:       kind,
	}, nil
}

// parseMaster converts a CPLMaster record into the original asset.
func parseMaster(r record) (*library.Asset, error) {
	res, ok := r.resourceField("resOriginalRes")
	if !ok {
		return nil, apperr.New(apperr.KindSync, "master record carries no original resource").
			With("record", r.RecordName)
	}
	fp, err := decodeChecksum(res.FileChecksum)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSync, "master record carries a malformed checksum", err).
			With("record", r.RecordName)
	}

	origName := sanitizeName(r.base64Field("filenameEnc"))
	return &library.Asset{
		RecordName:  r.RecordName,
		Fingerprint: fp,
		Size:        res.Size,
		OrigName:    origName,
		Ext:         extensionOf(origName),
		DownloadURL: res.DownloadURL,
	}, nil
}

// parseEdited extracts the edited variant a CPLAsset record may carry on top
// of its master.
func parseEdited(r record, master *library.Asset) (*library.Asset, error) {
	if r.stringField("adjustmentType") == "" {
		return nil, nil
	}
	res, ok := r.resourceField("resJPEGFullRes")
	if !ok {
		res, ok = r.resourceField("resVidFullRes")
	}
	if !ok {
		return nil, nil
	}
	fp, err := decodeChecksum(res.FileChecksum)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSync, "asset record carries a malformed checksum", err).
			With("record", r.RecordName)
	}

	return &library.Asset{
		RecordName:  r.RecordName,
		Fingerprint: fp,
		Size:        res.Size,
		OrigName:    master.OrigName,
		Ext:         master.Ext,
		Edited:      true,
		Favorite:    master.Favorite,
		DownloadURL: res.DownloadURL,
	}, nil
}

// decodeChecksum turns the service's base64 checksum into the raw
// fingerprint bytes.
func decodeChecksum(checksum string) (library.Fingerprint, error) {
	raw, err := base64.StdEncoding.DecodeString(checksum)
	if err != nil || len(raw) == 0 {
		return "", apperr.New(apperr.KindSync, "empty or undecodable checksum")
	}
	return library.Fingerprint(raw), nil
}

func extensionOf(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}

// sanitizeName keeps album and file names usable as path segments.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return strings.TrimSpace(name)
}
