package app

import (
	"context"
	"errors"

	"rulehistory/internal/export"
	"rulehistory/internal/gitrepo"
	"rulehistory/internal/rules"
)

func exampleDocument(category string) rules.DocumentID {
	return rules.DocumentID{Category: category, Slug: "rule-28"}
}

// History lists the recorded versions of one document, newest first.
func (s *Service) History(id rules.DocumentID, limit int) ([]gitrepo.CommitInfo, error) {
	repo, err := s.openFor(id)
	if err != nil {
		return nil, err
	}
	commits, err := repo.Log(s.opts.Layout.Path(id), limit)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, domainError(CodeDocumentNotFound, id.String()+" has no recorded versions", nil, nil)
	}
	return commits, nil
}

// Export renders a document as it read on asOf.
func (s *Service) Export(ctx context.Context, exporter *export.Service, doc rules.Document, asOf rules.Date, format export.Format) (*export.Result, error) {
	repo, err := s.openFor(doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.Label == "" {
		doc.Label = s.labelFor(ctx, doc.ID)
	}
	res, err := exporter.Export(ctx, repo, export.Request{
		Document: doc,
		Path:     s.opts.Layout.Path(doc.ID),
		AsOf:     asOf,
		Format:   format,
	})
	if errors.Is(err, export.ErrNotInForce) {
		return nil, domainError(CodeDocumentNotFound, "no version in force", nil, err)
	}
	return res, err
}

func (s *Service) openFor(id rules.DocumentID) (*gitrepo.Repo, error) {
	name := s.RepoName(id.Category)
	repo, err := s.repos.Open(name)
	if errors.Is(err, gitrepo.ErrNotInitialized) {
		return nil, domainError(CodeRepositoryMissing, "repository "+name+" does not exist", nil, err)
	}
	return repo, err
}

// labelFor asks the source for the document's label, falling back to the slug.
func (s *Service) labelFor(ctx context.Context, id rules.DocumentID) string {
	docs, err := s.source.Documents(ctx, id.Category)
	if err != nil {
		return ""
	}
	for _, d := range docs {
		if d.ID == id {
			return d.Label
		}
	}
	return ""
}
