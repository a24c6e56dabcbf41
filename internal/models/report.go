package models

import (
	"time"
)

// LineCounts tallies what happened to the lines and rows of a file
type LineCounts struct {
	LinesRead            int `json:"lines_read"`
	ObservationsInserted int `json:"observations_inserted"`
	DuplicatesSkipped    int `json:"duplicates_skipped"`
	SentinelSkipped      int `json:"sentinel_skipped"`
	MalformedSkipped     int `json:"malformed_skipped"`
	BlankSkipped         int `json:"blank_skipped"`
	StatsComputed        int `json:"stats_computed"`
}

// Add accumulates other into c
func (c *LineCounts) Add(other LineCounts) {
	c.LinesRead += other.LinesRead
	c.ObservationsInserted += other.ObservationsInserted
	c.DuplicatesSkipped += other.DuplicatesSkipped
	c.SentinelSkipped += other.SentinelSkipped
	c.MalformedSkipped += other.MalformedSkipped
	c.BlankSkipped += other.BlankSkipped
	c.StatsComputed += other.StatsComputed
}

// FileReport is the outcome of ingesting one station file
type FileReport struct {
	File    string `json:"file"`
	Station string `json:"station"`
	LineCounts
	Elapsed   time.Duration `json:"elapsed"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
}

// Failed reports whether the file was rolled back
func (r *FileReport) Failed() bool {
	return r.Error != ""
}

// Fail records err on the report, keeping its kind when it has one
func (r *FileReport) Fail(err error) {
	r.Error = err.Error()
	r.ErrorKind = KindOf(err)
}

// RunReport summarizes one ingestion run over a directory
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Files     []*FileReport `json:"files"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Totals    LineCounts    `json:"totals"`
}

// Tally recomputes Succeeded, Failed and Totals from Files
func (r *RunReport) Tally() {
	r.Succeeded, r.Failed = 0, 0
	r.Totals = LineCounts{}
	for _, f := range r.Files {
		if f.Failed() {
			r.Failed++
			continue
		}
		r.Succeeded++
		r.Totals.Add(f.LineCounts)
	}
}
