package app

import (
	"context"

	"github.com/rs/zerolog"

	"rulehistory/internal/gitrepo"
	"rulehistory/internal/report"
	"rulehistory/internal/search"
	"rulehistory/internal/sequencer"
)

type RunStore interface {
	SaveRun(ctx context.Context, summary report.Summary) error
}

type Archiver interface {
	Upload(ctx context.Context, summary report.Summary) (string, error)
}

type Notifier interface {
	IsConfigured() bool
	NotifyConflicts(summary report.Summary) error
}

type VersionIndexer interface {
	IndexVersions(records []search.VersionRecord) error
}

type MetricsRecorder interface {
	RecordRun(summary report.Summary)
	WriteTextfile(path string) error
}

// Sinks receive the run summary after every run. Each is optional and a
// failing sink never fails the run.
type Sinks struct {
	Runs            RunStore
	Archive         Archiver
	Notifier        Notifier
	Index           VersionIndexer
	Metrics         MetricsRecorder
	MetricsTextfile string
}

func (s *Service) publish(ctx context.Context, log zerolog.Logger, summary report.Summary, records []search.VersionRecord) {
	if s.sinks.Runs != nil {
		if err := s.sinks.Runs.SaveRun(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("save run summary failed")
		}
	}
	if s.sinks.Archive != nil {
		if key, err := s.sinks.Archive.Upload(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("archive run summary failed")
		} else {
			log.Debug().Str("object", key).Msg("run summary archived")
		}
	}
	if s.sinks.Notifier != nil && s.sinks.Notifier.IsConfigured() && len(summary.Conflicts()) > 0 {
		if err := s.sinks.Notifier.NotifyConflicts(summary); err != nil {
			log.Warn().Err(err).Msg("conflict notification failed")
		}
	}
	if s.sinks.Index != nil && len(records) > 0 {
		if err := s.sinks.Index.IndexVersions(records); err != nil {
			log.Warn().Err(err).Int("records", len(records)).Msg("index versions failed")
		}
	}
	if s.sinks.Metrics != nil {
		s.sinks.Metrics.RecordRun(summary)
		if s.sinks.MetricsTextfile != "" {
			if err := s.sinks.Metrics.WriteTextfile(s.sinks.MetricsTextfile); err != nil {
				log.Warn().Err(err).Msg("write metrics textfile failed")
			}
		}
	}
}

// indexRecords reads back the commits of applied mutations. An amend rewrites
// the hashes of every later commit, so after one the whole repository is
// reindexed.
func (s *Service) indexRecords(log zerolog.Logger, repo *gitrepo.Repo, applied []sequencer.Mutation) []search.VersionRecord {
	if s.sinks.Index == nil || len(applied) == 0 {
		return nil
	}
	snap, err := repo.Snapshot()
	if err != nil {
		log.Warn().Err(err).Msg("read repository for indexing failed")
		return nil
	}

	labels := make(map[string]string)
	amended := false
	for _, m := range applied {
		labels[m.Path] = m.Document.DisplayLabel()
		if m.Kind == sequencer.KindAmend {
			amended = true
		}
	}

	var out []search.VersionRecord
	if amended {
		for _, path := range snap.Paths() {
			for _, v := range snap.Versions(path) {
				out = append(out, search.RecordFromCommit(v))
			}
		}
		return out
	}
	for _, m := range applied {
		for _, v := range snap.Versions(m.Path) {
			if v.Key != m.Key {
				continue
			}
			rec := search.RecordFromCommit(v)
			rec.Label = labels[m.Path]
			out = append(out, rec)
		}
	}
	return out
}
