package search

import (
	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search. Either backend may be nil.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	log   zerolog.Logger
}

func NewService(meili *Meili, pgfts *PgFTS, log zerolog.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log.With().Str("component", "search").Logger()}
}

// Enabled reports whether any backend is configured.
func (s *Service) Enabled() bool {
	return s != nil && (s.meili != nil || s.pgfts != nil)
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) (Response, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to pgfts")
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}, errNoBackend
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		return Response{Results: []Result{}, Query: q.Text}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
}

// IndexVersions writes to every configured backend. Postgres is the durable
// copy; a Meilisearch failure is logged and the next reindex repairs it.
func (s *Service) IndexVersions(records []VersionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if s.meili != nil && s.meili.Healthy() {
		if err := s.meili.IndexVersions(records); err != nil {
			s.log.Warn().Err(err).Int("records", len(records)).Msg("meilisearch index failed")
		}
	}
	if s.pgfts != nil {
		if err := s.pgfts.IndexVersions(records); err != nil {
			return err
		}
	}
	return nil
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}
