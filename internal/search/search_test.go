package search

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulehistory/internal/rules"
)

func TestRecordIDSanitizes(t *testing.T) {
	id := rules.DocumentID{Category: "ndrappp", Slug: "rule-28.1"}
	key := rules.Key{Effective: rules.NewDate(2010, 6, 1), Suffix: "a b"}

	got := RecordID(id, key)
	assert.Equal(t, "ndrappp__rule-28_1__2010-06-01__a_b", got)

	plain := RecordID(id, rules.Key{Effective: rules.NewDate(2010, 6, 1)})
	assert.Equal(t, "ndrappp__rule-28_1__2010-06-01", plain)
}

func TestRecordFor(t *testing.T) {
	doc := rules.Document{ID: rules.DocumentID{Category: "ndrappp", Slug: "rule-28"}, Label: "Rule 28"}
	rec := rules.VersionRecord{Effective: rules.NewDate(2010, 6, 1), Title: "RULE 28. BRIEFS", Content: "text"}

	r := RecordFor(doc, "rule-28.md", rec, "abc123")
	assert.Equal(t, "ndrappp/rule-28", r.Document)
	assert.Equal(t, "Rule 28", r.Label)
	assert.Equal(t, "2010-06-01", r.Effective)
	assert.Equal(t, 20100601, r.EffectiveDay)
	assert.Equal(t, "abc123", r.Commit)
}

func TestRecordFromCommitReadsMessageLayout(t *testing.T) {
	v := rules.RecordedVersion{
		Document: rules.DocumentID{Category: "ndrappp", Slug: "rule-28"},
		Path:     "ndrappp/rule-28.md",
		Key:      rules.Key{Effective: rules.NewDate(2001, 3, 1)},
		Content:  "body",
		Commit:   "deadbeef",
		Message:  "Rule 28: Update effective March 1, 2001\n\nRULE 28. BRIEFS\nSource: https://example\n",
	}

	r := RecordFromCommit(v)
	assert.Equal(t, "Rule 28", r.Label)
	assert.Equal(t, "RULE 28. BRIEFS", r.Title)
	assert.Equal(t, 20010301, r.EffectiveDay)
}

func TestRecordFromCommitWithoutTitle(t *testing.T) {
	v := rules.RecordedVersion{
		Document: rules.DocumentID{Category: "ndrct", Slug: "rule-1"},
		Key:      rules.Key{Effective: rules.NewDate(2001, 3, 1)},
		Message:  "Rule 1: Update effective March 1, 2001\n\nSource: https://example\n",
	}
	r := RecordFromCommit(v)
	assert.Empty(t, r.Title)
	assert.Equal(t, "Rule 1", r.Label)
}

func TestFilters(t *testing.T) {
	asOf := rules.NewDate(2005, 1, 31)
	q := Query{Text: "briefs", FilterCategory: "ndrappp", AsOf: &asOf}

	assert.Equal(t, []string{`category = "ndrappp"`, "effectiveDay <= 20050131"}, meiliFilters(q))

	where, args := pgWhere(q)
	assert.Contains(t, where, "v.category = $2")
	assert.Contains(t, where, "v.effective <= $3::date")
	assert.Equal(t, []any{"briefs", "ndrappp", "2005-01-31"}, args)
}

func TestHitToResultPrefersFormatted(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}
	hit := meili.Hit{
		"id":         raw("x"),
		"document":   raw("ndrappp/rule-28"),
		"effective":  raw("2010-06-01"),
		"title":      raw("RULE 28"),
		"content":    raw("long content"),
		"_formatted": raw(map[string]string{"content": " <mark>long</mark> content "}),
	}

	r := hitToResult(hit)
	assert.Equal(t, "ndrappp/rule-28", r.Document)
	assert.Equal(t, "RULE 28", r.Title)
	assert.Equal(t, "<mark>long</mark> content", r.Snippet)
}

func TestServiceWithoutBackend(t *testing.T) {
	s := NewService(nil, nil, zerolog.Nop())
	assert.False(t, s.Enabled())

	resp, err := s.Search(Query{Text: "x"})
	require.ErrorIs(t, err, errNoBackend)
	assert.NotNil(t, resp.Results)
	require.NoError(t, s.IndexVersions([]VersionRecord{{ID: "a"}}))
}
