package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulehistory/internal/rules"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ndrappp", "manifest.yaml"), `
category: ndrappp
name: North Dakota Rules of Appellate Procedure
documents:
  - slug: rule-28
    label: Rule 28
    notes_file: rule-28/notes.md
    versions:
      - effective: 03/01/2001
        obsolete: 06/01/2010
        url: https://example.test/ndrappp/rule-28-1
        title: "RULE 28. BRIEFS"
        content_file: rule-28/2001-03-01.md
      - effective: 06/01/2010
        suffix: "2"
        url: https://example.test/ndrappp/rule-28
        content: "Inline text\n"
        notes: "Own notes."
  - slug: rule-29
    label: Rule 29
`)
	writeFile(t, filepath.Join(root, "ndrappp", "rule-28", "notes.md"), "Shared notes.\n")
	writeFile(t, filepath.Join(root, "ndrappp", "rule-28", "2001-03-01.md"), "Old text\n")
	writeFile(t, filepath.Join(root, "README.txt"), "not a category")
	return root
}

func TestDirSourceDocumentsAndVersions(t *testing.T) {
	src := NewDirSource(fixture(t))

	categories, err := src.Categories()
	require.NoError(t, err)
	assert.Equal(t, []string{"ndrappp"}, categories)
	assert.Equal(t, "North Dakota Rules of Appellate Procedure", src.CategoryName("ndrappp"))

	docs, err := src.Documents(context.Background(), "ndrappp")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "ndrappp/rule-28", docs[0].ID.String())
	assert.Equal(t, "Rule 28", docs[0].Label)

	versions, err := src.FetchVersions(context.Background(), docs[0])
	require.NoError(t, err)
	assert.Equal(t, []rules.RawVersion{
		{
			Effective: "03/01/2001",
			Obsolete:  "06/01/2010",
			Locator:   "https://example.test/ndrappp/rule-28-1",
			Title:     "RULE 28. BRIEFS",
			Content:   "Old text\n",
			Notes:     "Shared notes.\n",
		},
		{
			Effective: "06/01/2010",
			Suffix:    "2",
			Locator:   "https://example.test/ndrappp/rule-28",
			Content:   "Inline text\n",
			Notes:     "Own notes.",
		},
	}, versions)

	empty, err := src.FetchVersions(context.Background(), docs[1])
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDirSourceMissingContentIsPermanent(t *testing.T) {
	root := fixture(t)
	require.NoError(t, os.Remove(filepath.Join(root, "ndrappp", "rule-28", "2001-03-01.md")))

	_, err := NewDirSource(root).FetchVersions(context.Background(), rules.Document{ID: rules.DocumentID{Category: "ndrappp", Slug: "rule-28"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, IsTransient(err))
}

func TestDirSourceUnknownCategory(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Documents(context.Background(), "ndrev")
	require.Error(t, err)
	assert.Equal(t, "North Dakota Rules of Evidence", NewDirSource(t.TempDir()).CategoryName("ndrev"))
}

func TestMinutesDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2010-01-28.txt"), "Rule 28 discussion.")
	m := NewMinutesDir(dir)

	text, err := m.Minutes(context.Background(), rules.NewDate(2010, 1, 28))
	require.NoError(t, err)
	assert.Equal(t, "Rule 28 discussion.", text)

	text, err = m.Minutes(context.Background(), rules.NewDate(2011, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, text)
}
