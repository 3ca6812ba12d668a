package icloud

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/monitor"
)

var mon = monitor.Mon

// SessionSource is the slice of the auth session the client depends on.
type SessionSource interface {
	HTTPClient() *http.Client
	PhotosURL() string
}

// Client issues record-zone queries against the photo service. The protocol
// is reverse engineered and may drift; everything protocol-shaped stays
// behind this type.
type Client struct {
	session  SessionSource
	pageSize int
}

func NewClient(session SessionSource) *Client {
	return &Client{session: session, pageSize: 200}
}

type zoneID struct {
	ZoneName string `json:"zoneName"`
}

type queryRequest struct {
	Query struct {
		RecordType string        `json:"recordType"`
		FilterBy   []queryFilter `json:"filterBy,omitempty"`
	} `json:"query"`
	ZoneID             zoneID   `json:"zoneID"`
	ResultsLimit       int      `json:"resultsLimit"`
	DesiredKeys        []string `json:"desiredKeys,omitempty"`
	ContinuationMarker string   `json:"continuationMarker,omitempty"`
}

type queryFilter struct {
	FieldName  string `json:"fieldName"`
	Comparator string `json:"comparator"`
	FieldValue struct {
		Value string `json:"value"`
		Type  string `json:"type"`
	} `json:"fieldValue"`
}

type queryResponse struct {
	Records            []record `json:"records"`
	ContinuationMarker string   `json:"continuationMarker"`
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "cannot encode query", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.PhotosURL()+path, bytes.NewReader(raw))
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "cannot build query request", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.HTTPClient().Do(req)
	if err != nil {
		return apperr.Recoverable(apperr.KindNetwork, "photo service request failed", err).
			With("path", path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Recoverable(apperr.KindAuth, "photo service session expired", nil).
			With("path", path)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusMisdirectedRequest,
		resp.StatusCode >= 500:
		return apperr.Recoverable(apperr.KindNetwork, "photo service unavailable", nil).
			With("path", path).With("status", resp.StatusCode)
	default:
		return apperr.New(apperr.KindNetwork, "unexpected photo service response").
			With("path", path).With("status", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindSync, "malformed photo service response", err).
			With("path", path)
	}
	return nil
}

// queryAll drains a record query across all continuation pages.
func (c *Client) queryAll(ctx context.Context, zone, recordType string, filters []queryFilter) ([]record, error) {
	var out []record
	marker := ""
	for {
		req := queryRequest{ResultsLimit: c.pageSize, ContinuationMarker: marker}
		req.Query.RecordType = recordType
		req.Query.FilterBy = filters
		req.ZoneID.ZoneName = zone

		var resp queryResponse
		if err := c.post(ctx, "/records/query", req, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Records...)
		if resp.ContinuationMarker == "" {
			return out, nil
		}
		marker = resp.ContinuationMarker
	}
}

func (c *Client) listZones(ctx context.Context) ([]string, error) {
	var resp struct {
		Zones []struct {
			ZoneID  zoneID `json:"zoneID"`
			Deleted bool   `json:"deleted"`
		} `json:"zones"`
	}
	if err := c.post(ctx, "/zones/list", struct{}{}, &resp); err != nil {
		return nil, err
	}
	var zones []string
	for _, z := range resp.Zones {
		if !z.Deleted {
			zones = append(zones, z.ZoneID.ZoneName)
		}
	}
	if len(zones) == 0 {
		return nil, apperr.New(apperr.KindSync, "photo service reports no record zones")
	}
	return zones, nil
}

// FetchAll lists every album and asset record across all zones and builds
// the remote snapshot. Ordering is irrelevant; pagination is internal.
func (c *Client) FetchAll(ctx context.Context) (_ *library.Snapshot, err error) {
	defer mon.Task()(&ctx)(&err)

	zones, err := c.listZones(ctx)
	if err != nil {
		return nil, err
	}

	snap := library.NewSnapshot()
	assetsByRecord := make(map[string]*library.Asset)

	for _, zone := range zones {
		if err := c.fetchZone(ctx, zone, snap, assetsByRecord); err != nil {
			return nil, err
		}
	}

	// Album membership resolves through asset record names.
	for _, album := range snap.Albums {
		if album.Kind != library.KindAlbum {
			continue
		}
		if err := c.fetchMembership(ctx, album, assetsByRecord); err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "remote snapshot loaded",
		logger.Int("assets", len(snap.Assets)), logger.Int("albums", len(snap.Albums)))
	return snap, nil
}

func (c *Client) fetchZone(ctx context.Context, zone string, snap *library.Snapshot, assetsByRecord map[string]*library.Asset) error {
	albumRecords, err := c.queryAll(ctx, zone, recordTypeAlbum, nil)
	if err != nil {
		return err
	}
	for _, r := range albumRecords {
		album, err := parseAlbum(r)
		if err != nil {
			return err
		}
		if album != nil {
			snap.Albums[album.UUID] = album
		}
	}

	masterRecords, err := c.queryAll(ctx, zone, recordTypeMaster, nil)
	if err != nil {
		return err
	}
	masters := make(map[string]*library.Asset, len(masterRecords))
	for _, r := range masterRecords {
		asset, err := parseMaster(r)
		if err != nil {
			return err
		}
		masters[asset.RecordName] = asset
	}

	assetRecords, err := c.queryAll(ctx, zone, recordTypeAsset, nil)
	if err != nil {
		return err
	}
	for _, r := range assetRecords {
		masterRef := r.stringField("masterRef")
		master, ok := masters[masterRef]
		if !ok {
			logger.Warn(ctx, "asset record references unknown master",
				logger.String("record", r.RecordName))
			continue
		}
		master.Favorite = r.int64Field("isFavorite") != 0
		assetsByRecord[r.RecordName] = master

		edited, err := parseEdited(r, master)
		if err != nil {
			return err
		}
		if edited != nil {
			snap.Assets[edited.Fingerprint] = edited
		}
	}

	for _, master := range masters {
		snap.Assets[master.Fingerprint] = master
		assetsByRecord[master.RecordName] = master
	}
	return nil
}

func (c *Client) fetchMembership(ctx context.Context, album *library.Album, assetsByRecord map[string]*library.Asset) error {
	filter := queryFilter{FieldName: "parentId", Comparator: "EQUALS"}
	filter.FieldValue.Value = album.UUID
	filter.FieldValue.Type = "STRING"

	relations, err := c.queryAll(ctx, "PrimarySync", recordTypeRelation, []queryFilter{filter})
	if err != nil {
		return err
	}
	for _, r := range relations {
		asset, ok := assetsByRecord[r.stringField("childId")]
		if !ok {
			continue
		}
		album.Assets = append(album.Assets, asset.Fingerprint)
	}
	return nil
}

// DeleteAssets marks the given asset records deleted upstream. Used by the
// archive engine's remote-delete option.
func (c *Client) DeleteAssets(ctx context.Context, recordNames []string) (err error) {
	defer mon.Task()(&ctx)(&err)

	type operation struct {
		OperationType string `json:"operationType"`
		Record        struct {
			RecordName string                 `json:"recordName"`
			RecordType string                 `json:"recordType"`
			Fields     map[string]interface{} `json:"fields"`
		} `json:"record"`
	}

	var body struct {
		Operations []operation `json:"operations"`
		ZoneID     zoneID      `json:"zoneID"`
		Atomic     bool        `json:"atomic"`
	}
	body.ZoneID.ZoneName = "PrimarySync"
	for _, name := range recordNames {
		var op operation
		op.OperationType = "update"
		op.Record.RecordName = name
		op.Record.RecordType = recordTypeAsset
		op.Record.Fields = map[string]interface{}{
			"isDeleted": map[string]interface{}{"value": 1},
		}
		body.Operations = append(body.Operations, op)
	}

	var resp struct {
		Records []record `json:"records"`
	}
	return c.post(ctx, "/records/modify", body, &resp)
}
