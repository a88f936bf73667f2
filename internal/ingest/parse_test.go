package ingest

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contact-migrator/internal/fetcher"
	"github.com/sells-group/contact-migrator/internal/resilience"
)

const sampleCSV = "EMAIL,FIRST_NAME,first_name\nann@example.com,,Ann\n"

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseBytes_Formats(t *testing.T) {
	tests := map[string][]byte{
		"csv":  []byte(sampleCSV),
		"gzip": nil,
		"zip":  nil,
	}
	tests["gzip"] = gzipBytes(t, sampleCSV)
	tests["zip"] = zipBytes(t, map[string]string{"contacts.csv": sampleCSV})

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			rows, err := ParseBytes(context.Background(), data)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "ann@example.com", rows[0]["EMAIL"])
			assert.Equal(t, "Ann", rows[0]["first_name"])
		})
	}
}

func TestDownloadAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(gzipBytes(t, sampleCSV))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Retry: resilience.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})

	rows, err := DownloadAndParse(context.Background(), f, srv.URL+"/export.csv.gz")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = DownloadAndParse(context.Background(), f, srv.URL+"/missing.csv")
	var dlErr *fetcher.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
}

func TestParseFile_CSVAndZIP(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "export.csv")
	zipPath := filepath.Join(dir, "export.zip")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))
	require.NoError(t, os.WriteFile(zipPath, zipBytes(t, map[string]string{"a.csv": sampleCSV}), 0o644))

	for _, path := range []string{csvPath, zipPath} {
		rows, err := ParseFile(context.Background(), path)
		require.NoError(t, err, path)
		require.Len(t, rows, 1)
	}
}

func TestParseFile_ZIPMultipleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "EXPORT.ZIP")
	data := zipBytes(t, map[string]string{"a.csv": sampleCSV, "b.csv": sampleCSV, "notes.txt": "x"})
	require.NoError(t, os.WriteFile(path, data, 0o644))

	rows, err := ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestParseFile_ZIPWithoutCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, map[string]string{"readme.txt": "hi"}), 0o644))

	_, err := ParseFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no csv files")
}

func TestParseFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Contacts")
	require.NoError(t, err)
	for _, cells := range [][]string{{"Email", "Company"}, {"ann@example.com", "Acme"}} {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))

	rows, err := ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	c, ok := Normalize(rows[0])
	require.True(t, ok)
	assert.Equal(t, "Acme", c.Company)
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
