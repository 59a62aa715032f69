package export

import (
	"context"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"

	"rulehistory/internal/rules"
)

// VersionSource reads the repository as of a date.
type VersionSource interface {
	ContentAsOf(path string, date rules.Date) (rules.RecordedVersion, bool, error)
}

// Service provides document export functionality
type Service struct {
	pandocPath string
	log        zerolog.Logger
}

func NewService(pandocPath string, log zerolog.Logger) *Service {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	return &Service{pandocPath: pandocPath, log: log.With().Str("component", "export").Logger()}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, src VersionSource, req Request) (*Result, error) {
	version, ok, err := src.ContentAsOf(req.Path, req.AsOf)
	if err != nil {
		return nil, fmt.Errorf("read %s as of %s: %w", req.Path, req.AsOf, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotInForce, req.Document.ID, req.AsOf)
	}

	title := fmt.Sprintf("%s-%s", req.Document.DisplayLabel(), req.AsOf)
	s.log.Debug().
		Str("document", req.Document.ID.String()).
		Str("as_of", req.AsOf.String()).
		Str("version", version.Key.String()).
		Str("format", string(req.Format)).
		Msg("exporting")

	if req.Format == FormatMarkdown {
		return &Result{
			Data:     []byte(version.Content),
			Filename: sanitizeFilename(title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
			Version:  version,
		}, nil
	}

	contentHTML, err := MarkdownToHTML(version.Content)
	if err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	html, err := RenderDocumentHTML(TemplateData{
		Title:       req.Document.DisplayLabel(),
		Category:    rules.CategoryName(req.Document.ID.Category),
		AsOf:        req.AsOf.Long(),
		Effective:   version.Key.Effective.Long(),
		Suffix:      string(version.Key.Suffix),
		Commit:      version.Commit,
		ContentHTML: template.HTML(contentHTML),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var res *Result
	switch req.Format {
	case FormatHTML:
		res = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		res, err = exportPDF(ctx, html, title, citation(req.Document, version))
	case FormatDOCX:
		res, err = exportDOCX(ctx, s.pandocPath, html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
	if err != nil {
		return nil, err
	}
	res.Version = version
	return res, nil
}

// citation names the exact version, e.g. "Rule 28, effective March 1, 2001 (2)".
func citation(doc rules.Document, v rules.RecordedVersion) string {
	out := doc.DisplayLabel() + ", effective " + v.Key.Effective.Long()
	if v.Key.Suffix != "" {
		out += " (" + string(v.Key.Suffix) + ")"
	}
	return out
}
