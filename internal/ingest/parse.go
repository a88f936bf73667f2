package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-migrator/internal/fetcher"
)

// Downloader fetches a whole file into memory.
type Downloader interface {
	DownloadBytes(ctx context.Context, url string) ([]byte, error)
}

var gzipMagic = []byte{0x1f, 0x8b}

// DownloadAndParse downloads one export file and parses it into rows.
// A non-2xx answer surfaces as *fetcher.DownloadError.
func DownloadAndParse(ctx context.Context, d Downloader, url string) ([]Row, error) {
	data, err := d.DownloadBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	rows, err := ParseBytes(ctx, data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse export file")
	}
	return rows, nil
}

// ParseBytes parses an export payload, detecting ZIP and gzip wrappers by
// content rather than by name.
func ParseBytes(ctx context.Context, data []byte) ([]Row, error) {
	switch {
	case fetcher.IsZIP(data):
		return fetcher.ReadZIPCSVs(ctx, data)
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open gzip")
		}
		defer zr.Close() //nolint:errcheck
		inner, err := io.ReadAll(zr)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read gzip")
		}
		return ParseBytes(ctx, inner)
	default:
		return fetcher.ReadCSVRecords(ctx, bytes.NewReader(data))
	}
}

// ParseFile parses a local export file. .xlsx workbooks are read from the
// first sheet and .zip archives from disk; anything else is sniffed by
// content like ParseBytes.
func ParseFile(ctx context.Context, path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := fetcher.ReadXLSXRecords(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return rows, nil
	case ".zip":
		rows, err := fetcher.ReadZIPFileCSVs(ctx, path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return rows, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	rows, err := ParseBytes(ctx, data)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return rows, nil
}
