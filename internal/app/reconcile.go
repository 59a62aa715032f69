package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"rulehistory/internal/classify"
	"rulehistory/internal/gitrepo"
	"rulehistory/internal/normalize"
	"rulehistory/internal/report"
	"rulehistory/internal/rules"
	"rulehistory/internal/search"
	"rulehistory/internal/sequencer"
	"rulehistory/internal/source"
	"rulehistory/internal/timeline"
)

// fetched is one document's parsed versions plus what went wrong reading it.
type fetched struct {
	set      timeline.DocumentVersions
	problems []report.Problem
	skipped  int
	failed   bool
}

// reconcile runs fetch, classify, plan and apply for one repository. Nothing
// is written when apply is false or repo is nil.
func (s *Service) reconcile(ctx context.Context, log zerolog.Logger, g repoGroup, repo *gitrepo.Repo, apply bool, summary *report.Summary) ([]search.VersionRecord, error) {
	log = log.With().Str("repo", g.name).Logger()

	sets, err := s.fetchAll(ctx, log, g.categories, summary)
	if err != nil {
		return nil, err
	}

	var snap *gitrepo.Snapshot
	if repo != nil {
		snap, err = repo.Snapshot()
		if err != nil {
			summary.Add(report.Newf(report.KindRepositoryWriteFailure, rules.DocumentID{}, nil, "read %s: %v", g.name, err))
			summary.Fatal = err.Error()
			return nil, domainError(CodeRepositoryWriteFailure, "read repository "+g.name, nil, err)
		}
	}

	prepared, problems := timeline.PrepareAll(sets)
	summary.Add(problems...)
	summary.Counts.SkippedRecords += versionCount(sets) - versionCount(prepared)

	var decisions []classify.Decision
	for _, set := range prepared {
		path := s.opts.Layout.Path(set.Document.ID)
		state := classify.State{Path: path}
		if snap != nil {
			state.Versions = snap.Versions(path)
		}
		result := classify.Classify(set, state)

		counts := result.Count()
		summary.Counts.Unchanged += counts.Unchanged
		summary.Counts.NewVersions += counts.NewVersions
		summary.Counts.Corrections += counts.Corrections
		summary.Counts.Conflicts += counts.Conflicts

		if len(result.Missing) > 0 {
			keys := make([]string, 0, len(result.Missing))
			for _, k := range result.Missing {
				keys = append(keys, k.String())
			}
			log.Info().Str("document", set.Document.ID.String()).Strs("keys", keys).
				Msg("recorded versions no longer listed by the source")
		}
		for _, d := range result.Decisions {
			if c, ok := d.(classify.Correction); ok {
				logCorrection(log, c)
			}
		}
		decisions = append(decisions, result.Decisions...)
	}

	plan := sequencer.Build(ctx, decisions, s.builder)
	summary.Add(plan.Conflicts...)
	summary.Counts.Planned += len(plan.Mutations)
	for _, m := range plan.Mutations {
		summary.Plan = append(summary.Plan, report.PlanItem{
			Kind:     string(m.Kind),
			Document: m.Document.ID.String(),
			Path:     m.Path,
			Key:      m.Key.String(),
			Digest:   m.Digest,
		})
	}

	if !apply || repo == nil {
		for _, m := range plan.Mutations {
			log.Info().Str("plan", m.String()).Msg("planned")
		}
		return nil, nil
	}

	res, err := sequencer.New(repo, log.With().Str("component", "sequencer").Logger()).Apply(ctx, plan.Mutations)
	summary.Counts.Applied += len(res.Applied)
	summary.Counts.AlreadyApplied += res.AlreadyApplied
	summary.Add(res.Problems...)
	targets := s.indexRecords(log, repo, res.Applied)
	if err != nil {
		var we *sequencer.WriteError
		if errors.As(err, &we) {
			summary.Add(report.Newf(report.KindRepositoryWriteFailure, we.Mutation.Document.ID,
				[]rules.Date{we.Mutation.Key.Effective}, "%v", we.Err))
			summary.Fatal = err.Error()
			return targets, domainError(CodeRepositoryWriteFailure, "apply plan to "+g.name, nil, err)
		}
		return targets, err
	}
	return targets, nil
}

func versionCount(sets []timeline.DocumentVersions) int {
	n := 0
	for _, set := range sets {
		n += len(set.Versions)
	}
	return n
}

// fetchAll lists and fetches every document of the categories with bounded
// concurrency. Per-document failures become problems; only cancellation
// aborts the fetch.
func (s *Service) fetchAll(ctx context.Context, log zerolog.Logger, categories []string, summary *report.Summary) ([]timeline.DocumentVersions, error) {
	var docs []rules.Document
	for _, category := range categories {
		listed, err := s.source.Documents(ctx, category)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			summary.Add(fetchProblem(rules.DocumentID{}, fmt.Errorf("list %s: %w", category, err)))
			log.Error().Err(err).Str("category", category).Msg("list documents failed")
			continue
		}
		docs = append(docs, listed...)
	}
	summary.Counts.Documents += len(docs)

	results := make([]fetched, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.fetchOne(gctx, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sets := make([]timeline.DocumentVersions, 0, len(results))
	for _, r := range results {
		summary.Add(r.problems...)
		summary.Counts.SkippedRecords += r.skipped
		if r.failed {
			continue
		}
		sets = append(sets, r.set)
	}
	return sets, nil
}

func (s *Service) fetchOne(ctx context.Context, doc rules.Document) fetched {
	raws, err := s.source.FetchVersions(ctx, doc)
	if err != nil {
		return fetched{failed: true, problems: []report.Problem{fetchProblem(doc.ID, err)}}
	}

	out := fetched{set: timeline.DocumentVersions{Document: doc}}
	for _, raw := range raws {
		rec, err := rules.ParseVersion(raw)
		if err != nil {
			out.skipped++
			out.problems = append(out.problems, report.Newf(report.KindMalformedVersionData, doc.ID, nil,
				"skipping version %q (effective %q): %v", raw.Locator, raw.Effective, err))
			continue
		}
		rec.Content = normalize.Normalize(rec.Content)
		out.set.Versions = append(out.set.Versions, rec)
	}
	return out
}

func fetchProblem(id rules.DocumentID, err error) report.Problem {
	kind := report.KindPermanentFetch
	if source.IsTransient(err) {
		kind = report.KindTransientFetch
	}
	return report.Newf(kind, id, nil, "%v", err)
}

// logCorrection writes a line diff of a corrected version at info level.
func logCorrection(log zerolog.Logger, c classify.Correction) {
	log.Info().
		Str("document", c.Target.Document.ID.String()).
		Str("key", c.Target.Key().String()).
		Str("diff", lineDiff(normalize.Normalize(c.PriorContent), c.Target.Record.Content)).
		Msg("correction")
}

func lineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteString("\n")
			}
		}
	}
	return out.String()
}
