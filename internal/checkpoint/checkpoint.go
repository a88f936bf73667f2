// Package checkpoint persists migration progress snapshots so an
// interrupted run can be detected on the next start.
package checkpoint

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/model"
)

// FileName is the snapshot file name inside the logs directory.
const FileName = "migration-progress.json"

// Store reads and writes the snapshot file. Writes are best effort: a
// failed save or clear is logged and never stops a migration.
type Store struct {
	path string
}

// New creates a Store for dir/migration-progress.json.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Load returns the saved snapshot, or nil when none exists.
func (s *Store) Load() (*model.ProgressSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: read")
	}

	var snap model.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode %s", s.path)
	}
	return &snap, nil
}

// Save writes snap atomically through a temp file and rename.
func (s *Store) Save(snap model.ProgressSnapshot) error {
	err := s.write(snap)
	if err != nil {
		zap.L().Warn("checkpoint: save failed", zap.String("path", s.path), zap.Error(err))
	}
	return err
}

func (s *Store) write(snap model.ProgressSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "checkpoint: create dir")
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "checkpoint: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrap(err, "checkpoint: rename")
	}
	return nil
}

// Clear removes the snapshot. A missing file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	zap.L().Warn("checkpoint: clear failed", zap.String("path", s.path), zap.Error(err))
	return eris.Wrap(err, "checkpoint: remove")
}
