package model

// ExportStatus is the normalized state of a source export job.
type ExportStatus string

const (
	ExportPending ExportStatus = "pending"
	ExportReady   ExportStatus = "ready"
	ExportFailed  ExportStatus = "failed"
)

// ExportJob is an asynchronous export requested from the source platform.
// URLs is only meaningful once Status is ExportReady.
type ExportJob struct {
	ID     string       `json:"id"`
	Status ExportStatus `json:"status"`
	URLs   []string     `json:"urls,omitempty"`
}

// Terminal reports whether no further polling can change the job state.
func (j ExportJob) Terminal() bool {
	return j.Status == ExportFailed || (j.Status == ExportReady && len(j.URLs) > 0)
}
