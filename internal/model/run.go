package model

import "time"

// RunStatus represents the current state of an enrichment run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records a single pipeline invocation: where the input came from,
// how it ended, and the per-phase tallies.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Total     int       `json:"total"`
	Enriched  int       `json:"enriched"`
	Failed    int       `json:"failed"`
	Inserted  int64     `json:"inserted"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunCounts holds the tallies recorded when a run completes. Total is the
// number of records processed, Enriched the number that received a
// postcode, Failed the number of error-log entries, Inserted the rows
// actually written by the load phase.
type RunCounts struct {
	Total    int   `json:"total"`
	Enriched int   `json:"enriched"`
	Failed   int   `json:"failed"`
	Inserted int64 `json:"inserted"`
}
