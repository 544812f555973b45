package history

import (
	"time"

	"kettle/internal/ledger"
)

// Trigger names what started a run.
type Trigger string

const (
	TriggerCompile Trigger = "compile"
	TriggerWatch   Trigger = "watch"
)

// Run is one recorded build.
type Run struct {
	ID         string    `json:"id"`
	Trigger    Trigger   `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	SourceRoot string    `json:"source_root"`
	OutputRoot string    `json:"output_root"`

	CheckTimestamps bool     `json:"check_timestamps"`
	Compress        bool     `json:"compress"`
	Clean           bool     `json:"clean"`
	Filters         []string `json:"filters,omitempty"`

	Summary ledger.Summary `json:"summary"`
	// Error holds a run-level failure such as a discovery error; per-file
	// failures live in the outcomes.
	Error string `json:"error,omitempty"`
}

// Duration returns the wall-clock length of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the run hit a run-level error or any file failed.
func (r Run) Failed() bool {
	return r.Error != "" || r.Summary.Failed > 0
}
