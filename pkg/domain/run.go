package domain

import "time"

// RunRecord summarizes one graph execution for later inspection.
type RunRecord struct {
	ID        string          `json:"id"`
	Graph     string          `json:"graph"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Sections  []SectionResult `json:"sections"`
	Nodes     int             `json:"nodes"`
	Executed  int             `json:"executed"`
	Error     string          `json:"error,omitempty"`
}

// SectionResult is the outcome of a single section within a run.
type SectionResult struct {
	Index    int           `json:"index"`
	Nodes    int           `json:"nodes"`
	Executed int           `json:"executed"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Complete reports whether every dispatched node ran.
func (r *RunRecord) Complete() bool { return r.Error == "" && r.Executed == r.Nodes }
