package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"rulehistory/internal/rules"
)

const manifestName = "manifest.yaml"

type manifest struct {
	Category  string             `yaml:"category"`
	Name      string             `yaml:"name"`
	Documents []manifestDocument `yaml:"documents"`
}

type manifestDocument struct {
	Slug      string            `yaml:"slug"`
	Label     string            `yaml:"label"`
	NotesFile string            `yaml:"notes_file"`
	Versions  []manifestVersion `yaml:"versions"`
}

type manifestVersion struct {
	Effective   string `yaml:"effective"`
	Obsolete    string `yaml:"obsolete"`
	Suffix      string `yaml:"suffix"`
	URL         string `yaml:"url"`
	Title       string `yaml:"title"`
	ContentFile string `yaml:"content_file"`
	Content     string `yaml:"content"`
	Notes       string `yaml:"notes"`
}

// DirSource reads pre-fetched rule text laid out as
// <root>/<category>/manifest.yaml plus the files it references.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Categories lists the category directories that carry a manifest.
func (s *DirSource) Categories() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", classify(err))
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), manifestName)); err == nil {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// CategoryName returns the display name a manifest declares, if any.
func (s *DirSource) CategoryName(category string) string {
	m, err := s.load(category)
	if err != nil || strings.TrimSpace(m.Name) == "" {
		return rules.CategoryName(category)
	}
	return m.Name
}

func (s *DirSource) Documents(ctx context.Context, category string) ([]rules.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.load(category)
	if err != nil {
		return nil, err
	}
	out := make([]rules.Document, 0, len(m.Documents))
	for _, d := range m.Documents {
		out = append(out, rules.Document{
			ID:    rules.DocumentID{Category: category, Slug: d.Slug},
			Label: d.Label,
		})
	}
	return out, nil
}

func (s *DirSource) FetchVersions(ctx context.Context, doc rules.Document) ([]rules.RawVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.load(doc.ID.Category)
	if err != nil {
		return nil, err
	}
	var entry *manifestDocument
	for i := range m.Documents {
		if m.Documents[i].Slug == doc.ID.Slug {
			entry = &m.Documents[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("document %s not in manifest", doc.ID)
	}

	dir := filepath.Join(s.root, doc.ID.Category)
	sharedNotes := ""
	if entry.NotesFile != "" {
		sharedNotes, err = readFile(dir, entry.NotesFile)
		if err != nil {
			return nil, err
		}
	}

	out := make([]rules.RawVersion, 0, len(entry.Versions))
	for _, v := range entry.Versions {
		content := v.Content
		if v.ContentFile != "" {
			content, err = readFile(dir, v.ContentFile)
			if err != nil {
				return nil, err
			}
		}
		notes := v.Notes
		if notes == "" {
			notes = sharedNotes
		}
		out = append(out, rules.RawVersion{
			Effective: v.Effective,
			Obsolete:  v.Obsolete,
			Suffix:    v.Suffix,
			Locator:   v.URL,
			Title:     v.Title,
			Content:   content,
			Notes:     notes,
		})
	}
	return out, nil
}

func (s *DirSource) load(category string) (manifest, error) {
	path := filepath.Join(s.root, category, manifestName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, fmt.Errorf("read manifest %s: %w", path, classify(err))
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Category != "" && m.Category != category {
		return manifest{}, fmt.Errorf("manifest %s declares category %q", path, m.Category)
	}
	return m, nil
}

func readFile(dir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
		return "", fmt.Errorf("file %q escapes %s", name, dir)
	}
	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, classify(err))
	}
	return string(raw), nil
}

// classify wraps filesystem errors that may clear up on retry.
func classify(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) {
		return Transient(err)
	}
	return err
}

// MinutesDir serves committee minutes stored as <dir>/<YYYY-MM-DD>.txt.
type MinutesDir struct {
	dir string
}

func NewMinutesDir(dir string) *MinutesDir {
	return &MinutesDir{dir: dir}
}

func (m *MinutesDir) Minutes(ctx context.Context, meeting rules.Date) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(m.dir, meeting.String()+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read minutes %s: %w", meeting, err)
	}
	return string(raw), nil
}
