// Package report accumulates per-document problems and run counters into the
// end-of-run summary. Problems are collected rather than raised so a single run
// surfaces everything it found.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"rulehistory/internal/rules"
)

type Kind string

const (
	// KindTransientFetch is a fetch that still failed after bounded retries.
	KindTransientFetch Kind = "transient_fetch"
	// KindPermanentFetch is a source failure that retrying cannot fix.
	KindPermanentFetch Kind = "permanent_fetch"
	// KindMalformedVersionData is an unparseable date or suffix, or a duplicate key.
	KindMalformedVersionData Kind = "malformed_version_data"
	// KindInconsistentData flags advisory date data that contradicts ordering.
	KindInconsistentData Kind = "inconsistent_data"
	// KindOrderingConflict needs an operator: placing it would rewrite history.
	KindOrderingConflict Kind = "ordering_conflict"
	// KindRepositoryWriteFailure is run-fatal.
	KindRepositoryWriteFailure Kind = "repository_write_failure"
)

type Problem struct {
	Kind     Kind         `json:"kind"`
	Document string       `json:"document,omitempty"`
	Dates    []rules.Date `json:"dates,omitempty"`
	Reason   string       `json:"reason"`
}

func (p Problem) DateStrings() []string {
	out := make([]string, 0, len(p.Dates))
	for _, d := range p.Dates {
		out = append(out, d.String())
	}
	return out
}

func (p Problem) String() string {
	var b strings.Builder
	b.WriteString(string(p.Kind))
	if p.Document != "" {
		b.WriteString(" ")
		b.WriteString(p.Document)
	}
	if len(p.Dates) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(p.DateStrings(), ", "))
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(p.Reason)
	return b.String()
}

func Newf(kind Kind, document rules.DocumentID, dates []rules.Date, format string, args ...any) Problem {
	doc := ""
	if !document.IsZero() {
		doc = document.String()
	}
	return Problem{Kind: kind, Document: doc, Dates: dates, Reason: fmt.Sprintf(format, args...)}
}

// Counts tallies classifier outcomes and applied mutations.
type Counts struct {
	Documents      int `json:"documents"`
	Unchanged      int `json:"unchanged"`
	Corrections    int `json:"corrections"`
	NewVersions    int `json:"newVersions"`
	Conflicts      int `json:"conflicts"`
	SkippedRecords int `json:"skippedRecords"`
	Planned        int `json:"planned"`
	Applied        int `json:"applied"`
	AlreadyApplied int `json:"alreadyApplied"`
}

// PlanItem is one planned repository mutation as shown to operators.
type PlanItem struct {
	Kind     string `json:"kind"`
	Document string `json:"document"`
	Path     string `json:"path"`
	Key      string `json:"key"`
	Digest   string `json:"digest"`
}

type Summary struct {
	RunID      string     `json:"runId"`
	Mode       string     `json:"mode"`
	Categories []string   `json:"categories"`
	Apply      bool       `json:"apply"`
	Force      bool       `json:"force"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Counts     Counts     `json:"counts"`
	Plan       []PlanItem `json:"plan,omitempty"`
	Problems   []Problem  `json:"problems"`
	Fatal      string     `json:"fatal,omitempty"`
}

func (s *Summary) Add(problems ...Problem) {
	s.Problems = append(s.Problems, problems...)
}

// Conflicts returns only the ordering conflicts awaiting manual resolution.
func (s Summary) Conflicts() []Problem {
	return s.ByKind(KindOrderingConflict)
}

func (s Summary) ByKind(kind Kind) []Problem {
	var out []Problem
	for _, p := range s.Problems {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// KindCounts returns problem totals per kind, sorted by kind.
func (s Summary) KindCounts() []KindCount {
	totals := make(map[Kind]int)
	for _, p := range s.Problems {
		totals[p.Kind]++
	}
	out := make([]KindCount, 0, len(totals))
	for kind, n := range totals {
		out = append(out, KindCount{Kind: kind, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

type KindCount struct {
	Kind  Kind
	Count int
}

func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
