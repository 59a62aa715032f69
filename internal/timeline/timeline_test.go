package timeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulehistory/internal/report"
	"rulehistory/internal/rules"
)

func doc(category, slug string) rules.Document {
	return rules.Document{ID: rules.DocumentID{Category: category, Slug: slug}, Label: slug}
}

func version(date string, suffix string, content string) rules.VersionRecord {
	d, err := rules.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return rules.VersionRecord{Effective: d, Suffix: rules.Suffix(suffix), Content: content}
}

func keys(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.String())
	}
	return out
}

// ordered prepares sets and sorts their entries the way a commit plan does.
func ordered(sets []DocumentVersions, layout Layout) ([]Entry, []report.Problem) {
	prepared, problems := PrepareAll(sets)
	var entries []Entry
	for _, set := range prepared {
		entries = append(entries, Entries(set, layout)...)
	}
	Sort(entries)
	return entries, problems
}

func TestPrepareAllOrdersByDocument(t *testing.T) {
	sets := []DocumentVersions{
		{Document: doc("ndrct", "rule-1")},
		{Document: doc("ndrappp", "rule-2"), Versions: []rules.VersionRecord{version("2001-01-01", "", "b")}},
		{Document: doc("ndrappp", "rule-10"), Versions: []rules.VersionRecord{version("2001-01-01", "", "a")}},
	}
	prepared, problems := PrepareAll(sets)
	require.Empty(t, problems)

	var ids []string
	for _, set := range prepared {
		ids = append(ids, set.Document.ID.String())
	}
	assert.Equal(t, []string{"ndrappp/rule-2", "ndrappp/rule-10", "ndrct/rule-1"}, ids)
}

func TestOrderedTieBreaksByDocument(t *testing.T) {
	rule2 := DocumentVersions{Document: doc("ndrappp", "rule-2"), Versions: []rules.VersionRecord{version("2005-03-01", "", "two")}}
	rule1 := DocumentVersions{Document: doc("ndrappp", "rule-1"), Versions: []rules.VersionRecord{version("2005-03-01", "", "one")}}

	forward, problems := ordered([]DocumentVersions{rule1, rule2}, LayoutPerCategory)
	require.Empty(t, problems)
	backward, _ := ordered([]DocumentVersions{rule2, rule1}, LayoutPerCategory)

	assert.Equal(t, []string{"ndrappp/rule-1@2005-03-01", "ndrappp/rule-2@2005-03-01"}, keys(forward))
	assert.Equal(t, forward, backward)
}

func TestOrderedIsIndependentOfInputOrder(t *testing.T) {
	sets := []DocumentVersions{
		{Document: doc("ndrappp", "rule-10"), Versions: []rules.VersionRecord{
			version("2001-01-01", "", "a"), version("2010-06-01", "", "b"),
		}},
		{Document: doc("ndrappp", "rule-2"), Versions: []rules.VersionRecord{
			version("2010-06-01", "2", "c2"), version("2010-06-01", "1", "c1"), version("1999-12-31", "", "c0"),
		}},
		{Document: doc("ndrct", "rule-1"), Versions: []rules.VersionRecord{version("2010-06-01", "", "d")}},
		{Document: doc("ndrct", "rule-3"), Versions: nil},
	}
	want, _ := ordered(sets, LayoutCombined)
	require.Equal(t, []string{
		"ndrappp/rule-2@1999-12-31",
		"ndrappp/rule-10@2001-01-01",
		"ndrappp/rule-2@2010-06-01#1",
		"ndrappp/rule-2@2010-06-01#2",
		"ndrappp/rule-10@2010-06-01",
		"ndrct/rule-1@2010-06-01",
	}, keys(want))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]DocumentVersions(nil), sets...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		for j := range shuffled {
			vs := append([]rules.VersionRecord(nil), shuffled[j].Versions...)
			rng.Shuffle(len(vs), func(a, b int) { vs[a], vs[b] = vs[b], vs[a] })
			shuffled[j].Versions = vs
		}
		got, _ := ordered(shuffled, LayoutCombined)
		assert.Equal(t, want, got)
	}
}

func TestOrderedIsTotalOrder(t *testing.T) {
	entries, _ := ordered([]DocumentVersions{
		{Document: doc("a", "x-1"), Versions: []rules.VersionRecord{version("2000-01-01", "", "1"), version("2000-01-01", "b", "2")}},
		{Document: doc("a", "x-01"), Versions: []rules.VersionRecord{version("2000-01-01", "", "3")}},
		{Document: doc("b", "x-1"), Versions: []rules.VersionRecord{version("2000-01-01", "", "4")}},
	}, LayoutCombined)

	for i := range entries {
		for j := range entries {
			c := Compare(entries[i], entries[j])
			switch {
			case i == j:
				assert.Zero(t, c)
			case i < j:
				assert.Negative(t, c, "%s vs %s", entries[i], entries[j])
			default:
				assert.Positive(t, c, "%s vs %s", entries[i], entries[j])
			}
		}
	}
}

func TestOrderedEmptyDocumentContributesNothing(t *testing.T) {
	entries, problems := ordered([]DocumentVersions{{Document: doc("ndrappp", "rule-1")}}, LayoutPerCategory)
	assert.Empty(t, entries)
	assert.Empty(t, problems)
}

func TestOrderedFlagsObsoleteBeforeNextEffective(t *testing.T) {
	first := version("2001-01-01", "", "a")
	obsolete := rules.NewDate(2005, time.January, 1)
	first.Obsolete = &obsolete

	entries, problems := ordered([]DocumentVersions{{
		Document: doc("ndrappp", "rule-28"),
		Versions: []rules.VersionRecord{version("2010-06-01", "", "b"), first},
	}}, LayoutPerCategory)

	require.Len(t, entries, 2)
	assert.Equal(t, "2001-01-01", entries[0].Record.Effective.String())
	require.Len(t, problems, 1)
	assert.Equal(t, report.KindInconsistentData, problems[0].Kind)
	assert.Equal(t, "ndrappp/rule-28", problems[0].Document)
	assert.Equal(t, []string{"2005-01-01", "2010-06-01"}, problems[0].DateStrings())
}

func TestOrderedDropsDuplicateKeysDeterministically(t *testing.T) {
	a := version("2001-01-01", "", "beta")
	b := version("2001-01-01", "", "alpha")

	one, problems := ordered([]DocumentVersions{{Document: doc("c", "r"), Versions: []rules.VersionRecord{a, b}}}, LayoutPerCategory)
	two, _ := ordered([]DocumentVersions{{Document: doc("c", "r"), Versions: []rules.VersionRecord{b, a}}}, LayoutPerCategory)

	require.Len(t, one, 1)
	assert.Equal(t, "alpha", one[0].Record.Content)
	assert.Equal(t, one, two)
	require.Len(t, problems, 1)
	assert.Equal(t, report.KindMalformedVersionData, problems[0].Kind)
}

func TestOrderedGroupsRepeatedDocuments(t *testing.T) {
	entries, _ := ordered([]DocumentVersions{
		{Document: rules.Document{ID: rules.DocumentID{Category: "c", Slug: "r"}}, Versions: []rules.VersionRecord{version("2002-01-01", "", "b")}},
		{Document: rules.Document{ID: rules.DocumentID{Category: "c", Slug: "r"}, Label: "Rule R"}, Versions: []rules.VersionRecord{version("2001-01-01", "", "a")}},
	}, LayoutPerCategory)

	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "Rule R", e.Document.Label)
		assert.Equal(t, "r.md", e.Path)
	}
}

func TestLayoutPath(t *testing.T) {
	id := rules.DocumentID{Category: "ndrappp", Slug: "rule-28"}
	assert.Equal(t, "rule-28.md", LayoutPerCategory.Path(id))
	assert.Equal(t, "ndrappp/rule-28.md", LayoutCombined.Path(id))

	layout, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutPerCategory, layout)
	_, err = ParseLayout("flat")
	assert.Error(t, err)
}

func TestEntryWhenIsNoonUTC(t *testing.T) {
	e := Entry{Record: version("2001-01-01", "", "a")}
	assert.Equal(t, time.Date(2001, time.January, 1, 12, 0, 0, 0, time.UTC), e.When())
}
