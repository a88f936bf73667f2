// Package failures collects per-contact failures during a run and writes
// them to a CSV artifact at the end.
package failures

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-migrator/internal/model"
)

// FileName is the failure artifact name inside the logs directory.
const FileName = "failed-contacts.csv"

var header = []string{"email", "error"}

// Sink accumulates failed rows. It is safe for concurrent use.
type Sink struct {
	path   string
	create func(path string) (io.WriteCloser, error)

	mu   sync.Mutex
	rows []model.FailedRow
}

// NewSink creates a Sink that flushes to dir/failed-contacts.csv.
func NewSink(dir string) *Sink {
	return &Sink{path: filepath.Join(dir, FileName), create: createFile}
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// Path returns the artifact path.
func (s *Sink) Path() string { return s.path }

// Add records a failure for email.
func (s *Sink) Add(email string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	s.rows = append(s.rows, model.FailedRow{Email: email, Error: msg})
	s.mu.Unlock()
}

// Len returns the number of failures recorded so far.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Rows returns a copy of the recorded failures.
func (s *Sink) Rows() []model.FailedRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.FailedRow(nil), s.rows...)
}

// Flush writes the artifact and returns its path. Nothing is written, and
// "" is returned, when no failures were recorded.
func (s *Sink) Flush() (string, error) {
	rows := s.Rows()
	if len(rows) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", eris.Wrap(err, "failures: create dir")
	}
	f, err := s.create(s.path)
	if err != nil {
		return "", eris.Wrap(err, "failures: create file")
	}
	if err := writeRows(f, rows); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "failures: close file")
	}
	return s.path, nil
}

func writeRows(out io.Writer, rows []model.FailedRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "failures: write header")
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Email, r.Error}); err != nil {
			return eris.Wrap(err, "failures: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "failures: flush")
	}
	return nil
}

// Summary describes an existing failure artifact.
type Summary struct {
	Path  string            `json:"path" yaml:"path"`
	Count int               `json:"count" yaml:"count"`
	Rows  []model.FailedRow `json:"rows" yaml:"rows"`
}

// ReadSummary counts the rows in the artifact at path and returns up to
// limit of them. A missing file yields a zero Summary and no error.
func ReadSummary(path string, limit int) (Summary, error) {
	sum := Summary{Path: path}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sum, nil
	}
	if err != nil {
		return sum, eris.Wrap(err, "failures: open")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, eris.Wrap(err, "failures: read")
		}
		if first {
			first = false
			continue
		}
		sum.Count++
		if len(sum.Rows) < limit {
			row := model.FailedRow{Email: rec[0]}
			if len(rec) > 1 {
				row.Error = rec[1]
			}
			sum.Rows = append(sum.Rows, row)
		}
	}
	return sum, nil
}
