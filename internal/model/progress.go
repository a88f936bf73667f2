package model

import "time"

// ProgressSnapshot is the periodically persisted checkpoint of a running
// migration. Its presence at startup signals an interrupted prior run.
type ProgressSnapshot struct {
	Processed  int       `json:"processed"`
	Total      int       `json:"total"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	StartTime  time.Time `json:"startTime"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// Percent returns completion as a whole percentage in [0, 100].
func (p ProgressSnapshot) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Processed * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}
