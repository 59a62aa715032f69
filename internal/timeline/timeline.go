// Package timeline merges independent per-document version lists into one
// total order of commits.
package timeline

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"rulehistory/internal/report"
	"rulehistory/internal/rules"
)

// Layout decides where a document's file lives in the repository.
type Layout string

const (
	// LayoutPerCategory keeps one repository per category with <slug>.md at the root.
	LayoutPerCategory Layout = "per-category"
	// LayoutCombined keeps every category in one repository under <category>/<slug>.md.
	LayoutCombined Layout = "combined"
)

func ParseLayout(value string) (Layout, error) {
	switch Layout(strings.TrimSpace(value)) {
	case LayoutPerCategory, "":
		return LayoutPerCategory, nil
	case LayoutCombined:
		return LayoutCombined, nil
	default:
		return "", fmt.Errorf("unknown layout %q", value)
	}
}

func (l Layout) Path(id rules.DocumentID) string {
	if l == LayoutCombined {
		return id.Category + "/" + id.Slug + ".md"
	}
	return id.Slug + ".md"
}

// DocumentVersions is everything fetched for one document.
type DocumentVersions struct {
	Document rules.Document
	Versions []rules.VersionRecord
}

// Entry is one version bound to its document and target path.
type Entry struct {
	Document rules.Document
	Record   rules.VersionRecord
	Path     string
}

func (e Entry) Key() rules.Key { return e.Record.Key() }

// When is the backdated author and committer timestamp.
func (e Entry) When() time.Time { return e.Record.Effective.CommitTime() }

func (e Entry) String() string {
	return e.Document.ID.String() + "@" + e.Key().String()
}

// Compare orders entries by effective date, category, document, suffix.
// Content and locator only break ties between duplicate keys, which Prepare
// removes, so the order is total on any input.
func Compare(a, b Entry) int {
	if c := a.Record.Effective.Compare(b.Record.Effective); c != 0 {
		return c
	}
	if c := a.Document.ID.Compare(b.Document.ID); c != 0 {
		return c
	}
	if c := a.Record.Suffix.Compare(b.Record.Suffix); c != 0 {
		return c
	}
	if c := strings.Compare(a.Record.Content, b.Record.Content); c != 0 {
		return c
	}
	return strings.Compare(a.Record.Locator, b.Record.Locator)
}

func Sort(entries []Entry) {
	slices.SortFunc(entries, Compare)
}

func compareRecords(a, b rules.VersionRecord) int {
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Content, b.Content); c != 0 {
		return c
	}
	return strings.Compare(a.Locator, b.Locator)
}

// Prepare sorts one document's versions by key and drops duplicate keys,
// keeping the smallest record so the outcome ignores source order. Obsolete
// dates are checked against the following version but never affect order.
func Prepare(set DocumentVersions) (DocumentVersions, []report.Problem) {
	id := set.Document.ID
	versions := slices.Clone(set.Versions)
	slices.SortFunc(versions, compareRecords)

	var problems []report.Problem
	kept := versions[:0]
	for _, v := range versions {
		if n := len(kept); n > 0 && kept[n-1].Key() == v.Key() {
			problems = append(problems, report.Newf(report.KindMalformedVersionData, id,
				[]rules.Date{v.Effective}, "duplicate version key %s; keeping %s, dropping %s",
				v.Key(), locatorOrDash(kept[n-1].Locator), locatorOrDash(v.Locator)))
			continue
		}
		kept = append(kept, v)
	}

	for i, v := range kept {
		if v.Obsolete == nil {
			continue
		}
		if v.Obsolete.Before(v.Effective) {
			problems = append(problems, report.Newf(report.KindInconsistentData, id,
				[]rules.Date{v.Effective, *v.Obsolete}, "obsolete date precedes its own effective date"))
			continue
		}
		if i+1 < len(kept) && v.Obsolete.Before(kept[i+1].Effective) {
			problems = append(problems, report.Newf(report.KindInconsistentData, id,
				[]rules.Date{*v.Obsolete, kept[i+1].Effective},
				"version %s became obsolete before the next version took effect; ordering by effective date", v.Key()))
		}
	}

	return DocumentVersions{Document: set.Document, Versions: kept}, problems
}

func locatorOrDash(locator string) string {
	if locator == "" {
		return "-"
	}
	return locator
}

// Group folds sets that share a document identifier into one set. The label
// is the smallest non-empty label seen.
func Group(sets []DocumentVersions) []DocumentVersions {
	byID := make(map[rules.DocumentID]*DocumentVersions, len(sets))
	for _, set := range sets {
		existing, ok := byID[set.Document.ID]
		if !ok {
			copied := DocumentVersions{Document: set.Document, Versions: slices.Clone(set.Versions)}
			byID[set.Document.ID] = &copied
			continue
		}
		existing.Versions = append(existing.Versions, set.Versions...)
		if label := set.Document.Label; label != "" && (existing.Document.Label == "" || label < existing.Document.Label) {
			existing.Document.Label = label
		}
	}
	out := make([]DocumentVersions, 0, len(byID))
	for _, set := range byID {
		out = append(out, *set)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Document.ID.Compare(out[j].Document.ID) < 0
	})
	return out
}

// Entries binds prepared versions to their path without reordering.
func Entries(set DocumentVersions, layout Layout) []Entry {
	path := layout.Path(set.Document.ID)
	out := make([]Entry, 0, len(set.Versions))
	for _, v := range set.Versions {
		out = append(out, Entry{Document: set.Document, Record: v, Path: path})
	}
	return out
}

// PrepareAll groups sets by document and prepares each one, ordered by
// document. The result depends only on the input's keys and contents, never
// on the order of sets or of versions within a set.
func PrepareAll(sets []DocumentVersions) ([]DocumentVersions, []report.Problem) {
	grouped := Group(sets)
	out := make([]DocumentVersions, 0, len(grouped))
	var problems []report.Problem
	for _, set := range grouped {
		prepared, found := Prepare(set)
		problems = append(problems, found...)
		out = append(out, prepared)
	}
	return out, problems
}
