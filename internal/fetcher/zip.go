package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

var zipMagic = []byte("PK\x03\x04")

// IsZIP reports whether data starts with a ZIP local file header.
func IsZIP(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// ReadZIPCSVs parses every .csv entry in an in-memory ZIP archive, in
// archive order, and concatenates their records.
func ReadZIPCSVs(ctx context.Context, data []byte) ([]map[string]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	return readZIPCSVs(ctx, r.File)
}

// ReadZIPFileCSVs is ReadZIPCSVs for an archive on disk.
func ReadZIPFileCSVs(ctx context.Context, zipPath string) ([]map[string]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	return readZIPCSVs(ctx, r.File)
}

func readZIPCSVs(ctx context.Context, files []*zip.File) ([]map[string]string, error) {
	var all []map[string]string
	var found int
	for _, f := range files {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".csv") {
			continue
		}
		found++

		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "zip: open entry %s", f.Name)
		}
		records, err := ReadCSVRecords(ctx, rc)
		_ = rc.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "zip: parse entry %s", f.Name)
		}
		all = append(all, records...)
	}

	if found == 0 {
		return nil, eris.New("zip: archive contains no csv files")
	}
	return all, nil
}
