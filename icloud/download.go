package icloud

import (
	"context"
	"crypto/sha1"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/StorX2-0/iCloud-Backup/library"
	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
	"github.com/StorX2-0/iCloud-Backup/pkg/utils"
)

// DownloadAsset streams the asset body to destPath, computing the content
// fingerprint on the fly. The stream lands in a dot-prefixed temp file next
// to destPath and only an intact, verified body gets renamed into place.
func (c *Client) DownloadAsset(ctx context.Context, asset *library.Asset, destPath string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if asset.DownloadURL == "" {
		return apperr.New(apperr.KindSync, "asset carries no download URL").
			With("record", asset.RecordName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "cannot build download request", err)
	}
	resp, err := c.session.HTTPClient().Do(req)
	if err != nil {
		return apperr.Recoverable(apperr.KindNetwork, "asset download failed", err).
			With("record", asset.RecordName)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Recoverable(apperr.KindAuth, "download token expired", nil).
			With("record", asset.RecordName)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusMisdirectedRequest,
		resp.StatusCode >= 500:
		return apperr.Recoverable(apperr.KindNetwork, "asset download unavailable", nil).
			With("record", asset.RecordName).With("status", resp.StatusCode)
	default:
		return apperr.New(apperr.KindNetwork, "unexpected asset download response").
			With("record", asset.RecordName).With("status", resp.StatusCode)
	}

	tmp := filepath.Join(filepath.Dir(destPath), ".tmp-"+utils.RandStringRunes(12))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot create download temp file", err)
	}
	cleanup := func() { _ = os.Remove(tmp) }

	hash := sha1.New()
	head := &headCapture{limit: 3072}
	written, err := io.Copy(io.MultiWriter(f, hash, head), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return apperr.Interrupted(ctx.Err())
		}
		return apperr.Recoverable(apperr.KindNetwork, "asset download interrupted", err).
			With("record", asset.RecordName)
	}

	if written != asset.Size {
		cleanup()
		return apperr.Recoverable(apperr.KindSync, "downloaded byte length disagrees with record", nil).
			With("record", asset.RecordName).With("want", asset.Size).With("got", written)
	}
	if got := library.Fingerprint(hash.Sum(nil)); got != asset.Fingerprint {
		cleanup()
		return apperr.Recoverable(apperr.KindSync, "downloaded fingerprint disagrees with record", nil).
			With("record", asset.RecordName).
			With("want", asset.Fingerprint.Encode()).
			With("got", got.Encode())
	}

	if mt := mimetype.Detect(head.buf); !mt.Is("application/octet-stream") &&
		mt.Extension() != "" && mt.Extension() != "."+asset.Ext {
		logger.Debug(ctx, "asset content type disagrees with filename extension",
			logger.String("record", asset.RecordName),
			logger.String("ext", asset.Ext),
			logger.String("detected", mt.Extension()))
	}

	if err := os.Rename(tmp, destPath); err != nil {
		cleanup()
		return apperr.Wrap(apperr.KindLibrary, "cannot move download into place", err).
			With("record", asset.RecordName)
	}
	return nil
}

// headCapture retains the first bytes of a stream for content sniffing.
type headCapture struct {
	limit int
	buf   []byte
}

func (h *headCapture) Write(p []byte) (int, error) {
	if remaining := h.limit - len(h.buf); remaining > 0 {
		if len(p) < remaining {
			remaining = len(p)
		}
		h.buf = append(h.buf, p[:remaining]...)
	}
	return len(p), nil
}
