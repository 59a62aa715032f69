// Package app runs the engine: it fetches every document of the requested
// categories, classifies what changed against the repositories, applies the
// resulting plan and fans the run summary out to the configured sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rulehistory/internal/gitrepo"
	"rulehistory/internal/rules"
	"rulehistory/internal/report"
	"rulehistory/internal/search"
	"rulehistory/internal/sequencer"
	"rulehistory/internal/source"
	"rulehistory/internal/timeline"
	"rulehistory/internal/util"
)

const (
	ModeBuild  = "build"
	ModeUpdate = "update"
)

// CategoryNamer supplies display names, typically the source manifest.
type CategoryNamer interface {
	CategoryName(category string) string
}

type Options struct {
	Layout       timeline.Layout
	CombinedName string
	// Concurrency bounds parallel document fetches.
	Concurrency int
	// CategoryNames overrides display names from the source.
	CategoryNames map[string]string
}

type Service struct {
	opts    Options
	source  source.Fetcher
	namer   CategoryNamer
	repos   *gitrepo.Service
	builder sequencer.Builder
	sinks   Sinks
	log     zerolog.Logger
	now     func() time.Time
}

func New(opts Options, src source.Fetcher, namer CategoryNamer, repos *gitrepo.Service, builder sequencer.Builder, sinks Sinks, log zerolog.Logger) *Service {
	if opts.Layout == "" {
		opts.Layout = timeline.LayoutPerCategory
	}
	if opts.CombinedName == "" {
		opts.CombinedName = "rules"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{
		opts:    opts,
		source:  src,
		namer:   namer,
		repos:   repos,
		builder: builder,
		sinks:   sinks,
		log:     log.With().Str("component", "app").Logger(),
		now:     time.Now,
	}
}

// Build creates missing repositories and reconciles them with the source.
// force deletes and rebuilds the repositories first; without apply nothing
// is written, including the reset.
func (s *Service) Build(ctx context.Context, categories []string, force, apply bool) (report.Summary, error) {
	return s.run(ctx, ModeBuild, categories, force, apply)
}

// Update reconciles existing repositories with the source.
func (s *Service) Update(ctx context.Context, categories []string, apply bool) (report.Summary, error) {
	return s.run(ctx, ModeUpdate, categories, false, apply)
}

// repoGroup is one repository and the categories committed into it.
type repoGroup struct {
	name       string
	categories []string
}

func (s *Service) groups(categories []string) []repoGroup {
	if s.opts.Layout == timeline.LayoutCombined {
		return []repoGroup{{name: s.opts.CombinedName, categories: categories}}
	}
	out := make([]repoGroup, 0, len(categories))
	for _, c := range categories {
		out = append(out, repoGroup{name: c, categories: []string{c}})
	}
	return out
}

// RepoName is the repository a category's documents are committed to.
func (s *Service) RepoName(category string) string {
	if s.opts.Layout == timeline.LayoutCombined {
		return s.opts.CombinedName
	}
	return category
}

func (s *Service) Layout() timeline.Layout {
	return s.opts.Layout
}

func (s *Service) run(ctx context.Context, mode string, categories []string, force, apply bool) (report.Summary, error) {
	categories = normalizeCategories(categories)
	summary := report.Summary{
		RunID:      util.NewID("run"),
		Mode:       mode,
		Categories: categories,
		Apply:      apply,
		Force:      force,
		StartedAt:  s.now().UTC(),
	}
	if len(categories) == 0 {
		summary.FinishedAt = s.now().UTC()
		return summary, domainError(CodeInvalidArgument, "no categories given", nil, nil)
	}

	log := s.log.With().Str("run_id", summary.RunID).Str("mode", mode).Logger()
	log.Info().Strs("categories", categories).Bool("apply", apply).Bool("force", force).
		Str("layout", string(s.opts.Layout)).Msg("run started")

	var (
		runErr  error
		indexed []search.VersionRecord
	)
	for _, g := range s.groups(categories) {
		repo, err := s.prepareRepo(mode, g, force, apply)
		if err != nil {
			runErr = err
			break
		}
		targets, err := s.reconcile(ctx, log, g, repo, apply, &summary)
		indexed = append(indexed, targets...)
		if err != nil {
			runErr = err
			break
		}
	}

	summary.FinishedAt = s.now().UTC()
	if runErr != nil && summary.Fatal == "" && !errors.Is(runErr, context.Canceled) {
		summary.Fatal = runErr.Error()
	}

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.Int("documents", summary.Counts.Documents).
		Int("new_versions", summary.Counts.NewVersions).
		Int("corrections", summary.Counts.Corrections).
		Int("conflicts", summary.Counts.Conflicts).
		Int("planned", summary.Counts.Planned).
		Int("applied", summary.Counts.Applied).
		Int("problems", len(summary.Problems)).
		Dur("duration", summary.Duration()).
		Msg("run finished")

	s.publish(context.WithoutCancel(ctx), log, summary, indexed)
	return summary, runErr
}

// prepareRepo returns the repository a group reconciles against, or nil when
// a dry run targets a repository that does not exist yet.
func (s *Service) prepareRepo(mode string, g repoGroup, force, apply bool) (*gitrepo.Repo, error) {
	switch mode {
	case ModeUpdate:
		repo, err := s.repos.Open(g.name)
		if errors.Is(err, gitrepo.ErrNotInitialized) {
			return nil, domainError(CodeRepositoryMissing,
				fmt.Sprintf("repository %s does not exist; run build first", g.name), nil, err)
		}
		if err != nil {
			return nil, domainError(CodeRepositoryWriteFailure, "open repository "+g.name, nil, err)
		}
		return repo, nil

	default:
		if !apply {
			if force || !s.repos.Exists(g.name) {
				return nil, nil
			}
			repo, err := s.repos.Open(g.name)
			if err != nil {
				return nil, domainError(CodeRepositoryWriteFailure, "open repository "+g.name, nil, err)
			}
			return repo, nil
		}
		if force {
			s.log.Warn().Str("repo", g.name).Msg("force rebuild: deleting repository")
			if err := s.repos.Reset(g.name); err != nil {
				return nil, domainError(CodeRepositoryWriteFailure, "reset repository "+g.name, nil, err)
			}
		}
		repo, err := s.repos.Ensure(g.name, s.readme(g))
		if err != nil {
			return nil, domainError(CodeRepositoryWriteFailure, "initialize repository "+g.name, nil, err)
		}
		return repo, nil
	}
}

func (s *Service) categoryName(category string) string {
	if name, ok := s.opts.CategoryNames[category]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	if s.namer != nil {
		return s.namer.CategoryName(category)
	}
	return rules.CategoryName(category)
}

func normalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
