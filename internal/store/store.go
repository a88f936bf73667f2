// Package store persists the run ledger: one row per migration run with
// its status and final summary.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-migrator/internal/model"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source string          `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the run ledger.
type Store interface {
	// CreateRun inserts run, assigning an ID and timestamps when unset.
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, id string, summary *model.RunSummary) error
	FailRun(ctx context.Context, id string, errMsg string) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
