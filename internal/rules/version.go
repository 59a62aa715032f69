package rules

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies one version of a document. Within a document keys are unique
// and totally ordered by effective date, then suffix.
type Key struct {
	Effective Date
	Suffix    Suffix
}

func (k Key) Compare(other Key) int {
	if c := k.Effective.Compare(other.Effective); c != 0 {
		return c
	}
	return k.Suffix.Compare(other.Suffix)
}

func (k Key) String() string {
	if k.Suffix == "" {
		return k.Effective.String()
	}
	return k.Effective.String() + "#" + string(k.Suffix)
}

// VersionRecord is one historical revision of a document.
type VersionRecord struct {
	Effective Date
	Obsolete  *Date
	Locator   string
	Suffix    Suffix
	Title     string
	Content   string
	Notes     string
}

func (v VersionRecord) Key() Key {
	return Key{Effective: v.Effective, Suffix: v.Suffix}
}

// Current reports whether the publisher lists no end of validity.
func (v VersionRecord) Current() bool {
	return v.Obsolete == nil
}

// RawVersion is a version descriptor exactly as the source produced it.
type RawVersion struct {
	Effective string
	Obsolete  string
	Suffix    string
	Locator   string
	Title     string
	Content   string
	Notes     string
}

// ParseVersion validates the raw dates and suffix. Content is carried over
// untouched; normalization happens in the caller's pipeline.
func ParseVersion(raw RawVersion) (VersionRecord, error) {
	effective, err := ParseDate(raw.Effective)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("parse effective date: %w", err)
	}
	record := VersionRecord{
		Effective: effective,
		Locator:   strings.TrimSpace(raw.Locator),
		Suffix:    ParseSuffix(raw.Suffix),
		Title:     strings.TrimSpace(raw.Title),
		Content:   raw.Content,
		Notes:     raw.Notes,
	}
	if strings.TrimSpace(raw.Obsolete) != "" {
		obsolete, err := ParseDate(raw.Obsolete)
		if err != nil {
			return VersionRecord{}, fmt.Errorf("parse obsolete date: %w", err)
		}
		record.Obsolete = &obsolete
	}
	return record, nil
}

// RecordedVersion is what the repository holds for one version of a path.
type RecordedVersion struct {
	Document DocumentID
	Path     string
	Key      Key
	Content  string
	Commit   string
	Message  string
	When     time.Time
}

// Revision is a single repository mutation request.
type Revision struct {
	Document DocumentID
	Path     string
	Key      Key
	Content  string
	When     time.Time
	Message  string
}
