package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/store"
)

// FailurePreviewRows bounds the failure rows included in a Status.
const FailurePreviewRows = 20

// CheckpointStatus describes an in-flight or interrupted run.
type CheckpointStatus struct {
	Processed  int           `json:"processed" yaml:"processed"`
	Total      int           `json:"total" yaml:"total"`
	Created    int           `json:"created" yaml:"created"`
	Updated    int           `json:"updated" yaml:"updated"`
	Failed     int           `json:"failed" yaml:"failed"`
	Percent    int           `json:"percent" yaml:"percent"`
	StartTime  time.Time     `json:"start_time" yaml:"start_time"`
	LastUpdate time.Time     `json:"last_update" yaml:"last_update"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Status is a point-in-time view of migration state.
type Status struct {
	Checkpoint  *CheckpointStatus `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
	Failures    failures.Summary  `json:"failures" yaml:"failures"`
	Runs        []model.Run       `json:"runs,omitempty" yaml:"runs,omitempty"`
	CollectedAt time.Time         `json:"collected_at" yaml:"collected_at"`
}

// SnapshotLoader reads the current checkpoint.
type SnapshotLoader interface {
	Load() (*model.ProgressSnapshot, error)
}

// RunLister abstracts the ledger methods needed by the collector.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers status from the checkpoint, the failure artifact and
// the run ledger.
type Collector struct {
	checkpoint  SnapshotLoader
	failurePath string
	runs        RunLister
	recentRuns  int
}

// NewCollector creates a new status collector. runs may be nil when no
// ledger is configured.
func NewCollector(cp SnapshotLoader, failurePath string, runs RunLister, recentRuns int) *Collector {
	if recentRuns <= 0 {
		recentRuns = 10
	}
	return &Collector{
		checkpoint:  cp,
		failurePath: failurePath,
		runs:        runs,
		recentRuns:  recentRuns,
	}
}

// Collect gathers a Status snapshot.
func (c *Collector) Collect(ctx context.Context) (*Status, error) {
	st := &Status{CollectedAt: time.Now().UTC()}

	snap, err := c.checkpoint.Load()
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load checkpoint")
	}
	if snap != nil {
		st.Checkpoint = &CheckpointStatus{
			Processed:  snap.Processed,
			Total:      snap.Total,
			Created:    snap.Created,
			Updated:    snap.Updated,
			Failed:     snap.Failed,
			Percent:    snap.Percent(),
			StartTime:  snap.StartTime,
			LastUpdate: snap.LastUpdate,
			Elapsed:    snap.LastUpdate.Sub(snap.StartTime),
		}
	}

	st.Failures, err = failures.ReadSummary(c.failurePath, FailurePreviewRows)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: read failures")
	}

	if c.runs != nil {
		st.Runs, err = c.runs.ListRuns(ctx, store.RunFilter{Limit: c.recentRuns})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}
	}

	return st, nil
}
