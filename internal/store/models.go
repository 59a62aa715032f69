package store

import "time"

// Run is one persisted engine run. The full summary is kept as JSON; the
// counters are duplicated into columns for listing.
type Run struct {
	ID               string
	Mode             string
	Categories       []string
	Applied          bool
	Forced           bool
	StartedAt        time.Time
	FinishedAt       time.Time
	Documents        int
	NewVersions      int
	Corrections      int
	Conflicts        int
	MutationsApplied int
	Fatal            string
	Summary          []byte
}

type RunProblem struct {
	RunID    string
	Seq      int
	Kind     string
	Document string
	Dates    []string
	Reason   string
}
