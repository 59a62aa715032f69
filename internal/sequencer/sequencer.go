// Package sequencer turns classified decisions into an ordered mutation plan
// and applies it against the repository on a single writer.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rulehistory/internal/classify"
	"rulehistory/internal/message"
	"rulehistory/internal/normalize"
	"rulehistory/internal/report"
	"rulehistory/internal/rules"
	"rulehistory/internal/timeline"
)

// Repository is the write side of the version-control adapter. Every method
// is atomic for a single path.
type Repository interface {
	LatestState(path string) (rules.RecordedVersion, bool, error)
	History(path string) ([]rules.RecordedVersion, error)
	WriteAndCommit(rev rules.Revision) (string, error)
	// AmendLastCommit rewrites the newest commit touching path and returns
	// the new hash and how many later commits were replayed.
	AmendLastCommit(path, content, message string) (string, int, error)
}

type Builder interface {
	Build(ctx context.Context, in message.Input) string
}

type Kind string

const (
	KindAppend Kind = "append"
	KindAmend  Kind = "amend"
)

type Mutation struct {
	Kind     Kind
	Document rules.Document
	Path     string
	Key      rules.Key
	Content  string
	When     time.Time
	Message  string
	Digest   string
}

func (m Mutation) String() string {
	return fmt.Sprintf("%-6s %s %s %s", m.Kind, m.When.Format("2006-01-02"), m.Path, m.Digest[:min(12, len(m.Digest))])
}

// WriteError marks a repository adapter failure. It is fatal for the run.
type WriteError struct {
	Mutation Mutation
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s at %s: %v", e.Mutation.Kind, e.Mutation.Path, e.Mutation.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

type Plan struct {
	Mutations []Mutation
	Conflicts []report.Problem
}

// Build orders the NewVersion and Correction decisions by the global timeline
// order and renders their messages. Unchanged decisions are dropped and
// conflicts are returned as problems, never as mutations.
func Build(ctx context.Context, decisions []classify.Decision, builder Builder) Plan {
	type pending struct {
		entry timeline.Entry
		kind  Kind
		in    message.Input
	}

	var (
		plan  Plan
		queue []pending
	)
	for _, d := range decisions {
		switch d := d.(type) {
		case classify.Unchanged:
		case classify.NewVersion:
			queue = append(queue, pending{entry: d.Target, kind: KindAppend, in: message.Input{
				Document: d.Target.Document,
				Record:   d.Target.Record,
				Previous: effectiveOf(d.Previous),
			}})
		case classify.Correction:
			queue = append(queue, pending{entry: d.Target, kind: KindAmend, in: message.Input{
				Document:   d.Target.Document,
				Record:     d.Target.Record,
				Previous:   effectiveOf(d.Previous),
				Correction: true,
			}})
		case classify.Conflict:
			plan.Conflicts = append(plan.Conflicts, report.Newf(report.KindOrderingConflict, d.Target.Document.ID,
				[]rules.Date{d.Target.Record.Effective, d.Latest.Effective}, "%s", d.Reason))
		default:
			panic(fmt.Sprintf("sequencer: unhandled decision %T", d))
		}
	}

	entries := make([]timeline.Entry, len(queue))
	byEntry := make(map[string]pending, len(queue))
	for i, p := range queue {
		entries[i] = p.entry
		byEntry[p.entry.String()] = p
	}
	timeline.Sort(entries)

	for _, e := range entries {
		p := byEntry[e.String()]
		msg := builder.Build(ctx, p.in)
		if msg == "" {
			msg = message.Fallback(p.in)
		}
		plan.Mutations = append(plan.Mutations, Mutation{
			Kind:     p.kind,
			Document: e.Document,
			Path:     e.Path,
			Key:      e.Key(),
			Content:  normalize.Normalize(e.Record.Content),
			When:     e.When(),
			Message:  msg,
			Digest:   normalize.Digest(e.Record.Content),
		})
	}
	return plan
}

func effectiveOf(k *rules.Key) *rules.Date {
	if k == nil {
		return nil
	}
	d := k.Effective
	return &d
}

type Result struct {
	Applied        []Mutation
	AlreadyApplied int
	Problems       []report.Problem
}

type Sequencer struct {
	repo Repository
	log  zerolog.Logger
}

func New(repo Repository, log zerolog.Logger) *Sequencer {
	return &Sequencer{repo: repo, log: log}
}

// Apply runs the plan in order. Each step re-reads the path's latest state so
// replaying a partially applied plan skips what is already in the repository.
// Cancellation is honoured between steps. A *WriteError stops the run; what
// was applied before it stays applied.
func (s *Sequencer) Apply(ctx context.Context, mutations []Mutation) (Result, error) {
	var result Result
	for _, m := range mutations {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("apply plan: %w", err)
		}

		latest, ok, err := s.repo.LatestState(m.Path)
		if err != nil {
			return result, &WriteError{Mutation: m, Err: fmt.Errorf("read latest state: %w", err)}
		}

		switch m.Kind {
		case KindAppend:
			if ok && latest.Key == m.Key && normalize.Equal(latest.Content, m.Content) {
				result.AlreadyApplied++
				continue
			}
			if ok && m.Key.Compare(latest.Key) <= 0 {
				applied, err := s.recorded(m)
				if err != nil {
					return result, &WriteError{Mutation: m, Err: err}
				}
				if applied {
					result.AlreadyApplied++
					continue
				}
				result.Problems = append(result.Problems, report.Newf(report.KindOrderingConflict, m.Document.ID,
					[]rules.Date{m.Key.Effective, latest.Key.Effective},
					"refusing to append %s to %s: latest recorded version is %s", m.Key, m.Path, latest.Key))
				continue
			}
			hash, err := s.repo.WriteAndCommit(rules.Revision{
				Document: m.Document.ID,
				Path:     m.Path,
				Key:      m.Key,
				Content:  m.Content,
				When:     m.When,
				Message:  m.Message,
			})
			if err != nil {
				return result, &WriteError{Mutation: m, Err: err}
			}
			s.log.Info().Str("path", m.Path).Str("key", m.Key.String()).Str("commit", hash).Msg("version committed")

		case KindAmend:
			if !ok || latest.Key != m.Key {
				var dates []rules.Date
				latestKey := "nothing"
				if ok {
					dates = []rules.Date{m.Key.Effective, latest.Key.Effective}
					latestKey = latest.Key.String()
				}
				result.Problems = append(result.Problems, report.Newf(report.KindOrderingConflict, m.Document.ID, dates,
					"refusing to amend %s at %s: latest recorded version is %s", m.Path, m.Key, latestKey))
				continue
			}
			if normalize.Equal(latest.Content, m.Content) {
				result.AlreadyApplied++
				continue
			}
			hash, rewritten, err := s.repo.AmendLastCommit(m.Path, m.Content, m.Message)
			if err != nil {
				return result, &WriteError{Mutation: m, Err: err}
			}
			event := s.log.Info()
			if rewritten > 0 {
				event = s.log.Warn()
			}
			event.Str("path", m.Path).Str("key", m.Key.String()).Str("commit", hash).
				Int("rewritten", rewritten).Msg("version amended in place")

		default:
			return result, fmt.Errorf("apply plan: unknown mutation kind %q", m.Kind)
		}
		result.Applied = append(result.Applied, m)
	}
	return result, nil
}

// recorded reports whether m's key is already in the path's history with the
// same content, as when a plan is replayed after later steps succeeded.
func (s *Sequencer) recorded(m Mutation) (bool, error) {
	history, err := s.repo.History(m.Path)
	if err != nil {
		return false, fmt.Errorf("read history: %w", err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Key == m.Key {
			return normalize.Equal(history[i].Content, m.Content), nil
		}
	}
	return false, nil
}
