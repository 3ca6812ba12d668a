package icloud

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StorX2-0/iCloud-Backup/library"
)

func makeRecord(t *testing.T, recordType, recordName string, fields map[string]interface{}) record {
	t.Helper()
	r := record{RecordName: recordName, RecordType: recordType, Fields: map[string]recordField{}}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		r.Fields[k] = recordField{Value: raw}
	}
	return r
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func Test_parseAlbum(t *testing.T) {
	r := makeRecord(t, recordTypeAlbum, "uuid-1", map[string]interface{}{
		"albumNameEnc": b64("Summer 2024"),
		"albumType":    albumTypeAlbum,
		"parentId":     "uuid-0",
	})

	album, err := parseAlbum(r)
	require.NoError(t, err)
	require.NotNil(t, album)
	assert.Equal(t, "uuid-1", album.UUID)
	assert.Equal(t, "Summer 2024", album.Name)
	assert.Equal(t, "uuid-0", album.ParentUUID)
	assert.Equal(t, library.KindAlbum, album.Kind)
}

func Test_parseAlbum_SkipsDeletedAndSmartAlbums(t *testing.T) {
	deleted := makeRecord(t, recordTypeAlbum, "uuid-1", map[string]interface{}{
		"albumNameEnc": b64("Gone"),
		"albumType":    albumTypeAlbum,
		"isDeleted":    1,
	})
	album, err := parseAlbum(deleted)
	require.NoError(t, err)
	assert.Nil(t, album)

	smart := makeRecord(t, recordTypeAlbum, "uuid-2", map[string]interface{}{
		"albumNameEnc": b64("Selfies"),
		"albumType":    6,
	})
	album, err = parseAlbum(smart)
	require.NoError(t, err)
	assert.Nil(t, album)
}

func Test_parseAlbum_NamelessRecordIsMalformed(t *testing.T) {
	r := makeRecord(t, recordTypeAlbum, "uuid-1", map[string]interface{}{
		"albumType": albumTypeAlbum,
	})
	_, err := parseAlbum(r)
	assert.Error(t, err)
}

func Test_parseMaster(t *testing.T) {
	checksum := b64("raw-fingerprint")
	r := makeRecord(t, recordTypeMaster, "master-1", map[string]interface{}{
		"filenameEnc": b64("IMG_0042.HEIC"),
		"resOriginalRes": map[string]interface{}{
			"fileChecksum": checksum,
			"size":         1234,
			"downloadURL":  "https://cvws.icloud-content.com/x?o=token",
		},
	})

	asset, err := parseMaster(r)
	require.NoError(t, err)
	assert.Equal(t, "master-1", asset.RecordName)
	assert.Equal(t, library.Fingerprint("raw-fingerprint"), asset.Fingerprint)
	assert.Equal(t, int64(1234), asset.Size)
	assert.Equal(t, "IMG_0042.HEIC", asset.OrigName)
	assert.Equal(t, "heic", asset.Ext)
	assert.False(t, asset.Edited)
}

func Test_parseEdited(t *testing.T) {
	master := &library.Asset{OrigName: "IMG_1.JPG", Ext: "jpg", Favorite: true}

	plain := makeRecord(t, recordTypeAsset, "asset-1", map[string]interface{}{
		"masterRef": "master-1",
	})
	edited, err := parseEdited(plain, master)
	require.NoError(t, err)
	assert.Nil(t, edited, "no adjustment means no edited variant")

	adjusted := makeRecord(t, recordTypeAsset, "asset-1", map[string]interface{}{
		"masterRef":      "master-1",
		"adjustmentType": "com.apple.photo",
		"resJPEGFullRes": map[string]interface{}{
			"fileChecksum": b64("edited-fingerprint"),
			"size":         99,
			"downloadURL":  "https://cvws.icloud-content.com/y",
		},
	})
	edited, err = parseEdited(adjusted, master)
	require.NoError(t, err)
	require.NotNil(t, edited)
	assert.True(t, edited.Edited)
	assert.True(t, edited.Favorite)
	assert.Equal(t, library.Fingerprint("edited-fingerprint"), edited.Fingerprint)
	assert.Equal(t, "IMG_1-edited.jpg", edited.LinkName())
}

func Test_extensionOf(t *testing.T) {
	assert.Equal(t, "jpg", extensionOf("IMG_1.JPG"))
	assert.Equal(t, "bin", extensionOf("noextension"))
}
