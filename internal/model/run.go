package model

import "time"

// RunStatus represents the current state of a migration run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents a single migration run recorded in the run ledger.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	DryRun    bool        `json:"dry_run"`
	Source    string      `json:"source"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the final counts of a completed run.
type RunSummary struct {
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Failed      int           `json:"failed"`
	Dropped     int           `json:"dropped"`
	Elapsed     time.Duration `json:"elapsed"`
	FailurePath string        `json:"failure_path,omitempty"`
}

// Throughput returns processed contacts per second, or 0 when no time elapsed.
func (s RunSummary) Throughput() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed) / secs
}
