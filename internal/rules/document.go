// Package rules holds the data model shared by the merge, classify and commit
// stages: documents, their dated versions and what the repository has recorded.
package rules

import (
	"fmt"
	"strings"
)

// DocumentID is the stable identity of a rule, order or appendix.
type DocumentID struct {
	Category string
	Slug     string
}

func ParseDocumentID(value string) (DocumentID, error) {
	category, slug, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok || category == "" || slug == "" || strings.Contains(slug, "/") {
		return DocumentID{}, fmt.Errorf("invalid document id %q: want <category>/<slug>", value)
	}
	return DocumentID{Category: category, Slug: slug}, nil
}

func (id DocumentID) String() string {
	return id.Category + "/" + id.Slug
}

func (id DocumentID) IsZero() bool {
	return id.Category == "" && id.Slug == ""
}

// Compare orders by category, then slug in natural order.
func (id DocumentID) Compare(other DocumentID) int {
	if c := strings.Compare(id.Category, other.Category); c != 0 {
		return c
	}
	return NaturalCompare(id.Slug, other.Slug)
}

type Document struct {
	ID    DocumentID
	Label string
}

// DisplayLabel falls back to the slug when the source supplied no label.
func (d Document) DisplayLabel() string {
	if strings.TrimSpace(d.Label) != "" {
		return d.Label
	}
	return d.ID.Slug
}

var categoryNames = map[string]string{
	"ndrappp":           "North Dakota Rules of Appellate Procedure",
	"ndrct":             "North Dakota Rules of Court",
	"ndsupctadminr":     "North Dakota Supreme Court Administrative Rules",
	"ndsupctadminorder": "North Dakota Supreme Court Administrative Orders",
	"ndrcivp":           "North Dakota Rules of Civil Procedure",
	"ndrcrimp":          "North Dakota Rules of Criminal Procedure",
	"ndrjuvp":           "North Dakota Rules of Juvenile Procedure",
	"ndrev":             "North Dakota Rules of Evidence",
}

// CategoryName returns the display name for a known category identifier.
func CategoryName(category string) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return category
}
