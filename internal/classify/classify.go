// Package classify compares freshly fetched versions of a document against
// what the repository already records for its path.
package classify

import (
	"fmt"
	"slices"

	"rulehistory/internal/normalize"
	"rulehistory/internal/rules"
	"rulehistory/internal/timeline"
)

// Decision is one of Unchanged, NewVersion, Correction or Conflict. The set is
// closed; callers switch on the concrete type.
type Decision interface {
	Entry() timeline.Entry
	decision()
}

// Unchanged needs no mutation.
type Unchanged struct {
	Target timeline.Entry
}

// NewVersion appends a commit. Previous is the key it follows on the same
// path, recorded or planned earlier in the same run, nil for the first one.
type NewVersion struct {
	Target   timeline.Entry
	Previous *rules.Key
}

// Correction replaces the content of the latest recorded version in place.
type Correction struct {
	Target       timeline.Entry
	PriorContent string
	// Previous is the key recorded before the corrected one, if any.
	Previous *rules.Key
}

// Conflict cannot be placed without rewriting published history.
type Conflict struct {
	Target timeline.Entry
	Latest rules.Key
	Reason string
}

func (d Unchanged) Entry() timeline.Entry  { return d.Target }
func (d NewVersion) Entry() timeline.Entry { return d.Target }
func (d Correction) Entry() timeline.Entry { return d.Target }
func (d Conflict) Entry() timeline.Entry   { return d.Target }

func (Unchanged) decision()  {}
func (NewVersion) decision() {}
func (Correction) decision() {}
func (Conflict) decision()   {}

// State is the recorded history of one path, oldest commit first.
type State struct {
	Path     string
	Versions []rules.RecordedVersion
}

// Latest returns the greatest recorded key.
func (s State) Latest() (rules.RecordedVersion, bool) {
	var (
		latest rules.RecordedVersion
		found  bool
	)
	for _, v := range s.Versions {
		if !found || v.Key.Compare(latest.Key) >= 0 {
			latest, found = v, true
		}
	}
	return latest, found
}

// byKey keeps the last commit recorded for each key.
func (s State) byKey() map[rules.Key]rules.RecordedVersion {
	out := make(map[rules.Key]rules.RecordedVersion, len(s.Versions))
	for _, v := range s.Versions {
		out[v.Key] = v
	}
	return out
}

type Result struct {
	Decisions []Decision
	// Missing lists recorded keys the source no longer reports.
	Missing []rules.Key
}

func (r Result) Count() Counts {
	var c Counts
	for _, d := range r.Decisions {
		switch d.(type) {
		case Unchanged:
			c.Unchanged++
		case NewVersion:
			c.NewVersions++
		case Correction:
			c.Corrections++
		case Conflict:
			c.Conflicts++
		}
	}
	return c
}

type Counts struct {
	Unchanged   int
	NewVersions int
	Corrections int
	Conflicts   int
}

// Classify decides every fetched version of one document. set must already
// be prepared (sorted by key, duplicates removed, content normalized).
//
// A recorded key with equal content is Unchanged. A recorded key with new
// content is a Correction when it is the latest recorded key, otherwise a
// Conflict. An unrecorded key after the latest recorded key is a NewVersion;
// one before it is a Conflict.
func Classify(set timeline.DocumentVersions, state State) Result {
	entries := make([]timeline.Entry, 0, len(set.Versions))
	for _, v := range set.Versions {
		entries = append(entries, timeline.Entry{Document: set.Document, Record: v, Path: state.Path})
	}

	recorded := state.byKey()
	latest, hasLatest := state.Latest()
	previous := previousKeys(state)

	var (
		result  Result
		seen    = make(map[rules.Key]bool, len(entries))
		tailKey *rules.Key
	)
	if hasLatest {
		k := latest.Key
		tailKey = &k
	}

	for _, entry := range entries {
		key := entry.Key()
		seen[key] = true

		if prior, ok := recorded[key]; ok {
			switch {
			case normalize.Equal(prior.Content, entry.Record.Content):
				result.Decisions = append(result.Decisions, Unchanged{Target: entry})
			case key == latest.Key:
				result.Decisions = append(result.Decisions, Correction{
					Target:       entry,
					PriorContent: prior.Content,
					Previous:     previous[key],
				})
			default:
				result.Decisions = append(result.Decisions, Conflict{
					Target: entry,
					Latest: latest.Key,
					Reason: fmt.Sprintf("content of %s changed but later versions up to %s are already recorded", key, latest.Key),
				})
			}
			continue
		}

		if hasLatest && key.Compare(latest.Key) < 0 {
			result.Decisions = append(result.Decisions, Conflict{
				Target: entry,
				Latest: latest.Key,
				Reason: fmt.Sprintf("version %s is older than the latest recorded version %s and would be inserted into existing history", key, latest.Key),
			})
			continue
		}

		decision := NewVersion{Target: entry}
		if tailKey != nil {
			k := *tailKey
			decision.Previous = &k
		}
		result.Decisions = append(result.Decisions, decision)
		k := key
		tailKey = &k
	}

	for _, v := range state.Versions {
		if !seen[v.Key] {
			seen[v.Key] = true
			result.Missing = append(result.Missing, v.Key)
		}
	}
	return result
}

// previousKeys maps each recorded key to the greatest recorded key below it.
func previousKeys(state State) map[rules.Key]*rules.Key {
	byKey := state.byKey()
	ordered := make([]rules.Key, 0, len(byKey))
	for k := range byKey {
		ordered = append(ordered, k)
	}
	sortKeys(ordered)
	out := make(map[rules.Key]*rules.Key, len(ordered))
	for i := 1; i < len(ordered); i++ {
		k := ordered[i-1]
		out[ordered[i]] = &k
	}
	return out
}

func sortKeys(keys []rules.Key) {
	slices.SortFunc(keys, func(a, b rules.Key) int { return a.Compare(b) })
}
