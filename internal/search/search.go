package search

import (
	"errors"
	"strings"

	"rulehistory/internal/rules"
)

// VersionRecord is the data we index for one recorded version of a document.
type VersionRecord struct {
	ID        string `json:"id"`
	Document  string `json:"document"`
	Category  string `json:"category"`
	Slug      string `json:"slug"`
	Label     string `json:"label"`
	Path      string `json:"path"`
	Effective string `json:"effective"`
	// EffectiveDay is the effective date as YYYYMMDD so indexes can range-filter it.
	EffectiveDay int    `json:"effectiveDay"`
	Suffix       string `json:"suffix"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Commit       string `json:"commit"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Document  string `json:"document"`
	Path      string `json:"path"`
	Effective string `json:"effective"`
	Suffix    string `json:"suffix,omitempty"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Commit    string `json:"commit"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterCategory string
	// AsOf, when set, restricts hits to versions effective on or before it.
	AsOf   *rules.Date
	Limit  int
	Offset int
}

// Response is the envelope returned by Service.Search.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push versions into a search index.
type Indexer interface {
	IndexVersions(records []VersionRecord) error
}

// RecordFor builds the index record for a version recorded at commit.
func RecordFor(doc rules.Document, path string, rec rules.VersionRecord, commit string) VersionRecord {
	key := rec.Key()
	return VersionRecord{
		ID:        RecordID(doc.ID, key),
		Document:  doc.ID.String(),
		Category:  doc.ID.Category,
		Slug:      doc.ID.Slug,
		Label:     doc.DisplayLabel(),
		Path:      path,
		Effective:    key.Effective.String(),
		EffectiveDay: dayNumber(key.Effective),
		Suffix:       string(key.Suffix),
		Title:     rec.Title,
		Content:   rec.Content,
		Commit:    commit,
	}
}

// RecordFromCommit builds an index record from a version already committed.
// Label and title are recovered from the commit message layout: the subject
// reads "<label>: Update effective ..." and the title is the first body line.
func RecordFromCommit(v rules.RecordedVersion) VersionRecord {
	label := v.Document.Slug
	subject, body, _ := strings.Cut(v.Message, "\n")
	if prefix, _, ok := strings.Cut(subject, ": Update effective"); ok && prefix != "" {
		label = prefix
	}
	title, _, _ := strings.Cut(strings.TrimLeft(body, "\n"), "\n")
	if strings.HasPrefix(title, "Source: ") || strings.HasPrefix(title, "Document: ") {
		title = ""
	}
	return VersionRecord{
		ID:        RecordID(v.Document, v.Key),
		Document:  v.Document.String(),
		Category:  v.Document.Category,
		Slug:      v.Document.Slug,
		Label:     label,
		Path:      v.Path,
		Effective:    v.Key.Effective.String(),
		EffectiveDay: dayNumber(v.Key.Effective),
		Suffix:       string(v.Key.Suffix),
		Title:     strings.TrimSpace(title),
		Content:   v.Content,
		Commit:    v.Commit,
	}
}

// RecordID derives a Meilisearch-safe primary key. Only alphanumerics, '-'
// and '_' are allowed there, so everything else collapses to '_'.
func RecordID(id rules.DocumentID, key rules.Key) string {
	raw := id.Category + "__" + id.Slug + "__" + key.Effective.String()
	if key.Suffix != "" {
		raw += "__" + string(key.Suffix)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func dayNumber(d rules.Date) int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}

var errNoBackend = errors.New("search: no healthy backend")
