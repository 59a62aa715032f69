// Package message assembles commit messages for rule versions. Building never
// fails: every collaborator error degrades to a smaller message.
package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rulehistory/internal/normalize"
	"rulehistory/internal/rules"
)

// CorrectionNote is appended to messages of amended commits.
const CorrectionNote = "Text corrected after publication; this commit was amended in place."

// Input is everything known about the version being committed.
type Input struct {
	Document rules.Document
	Record   rules.VersionRecord
	// Previous is the effective date of the version this one follows on the
	// same path, nil for the first.
	Previous   *rules.Date
	Correction bool
}

// MinutesSource returns committee minutes text for a meeting date. An empty
// string with a nil error means no minutes were published.
type MinutesSource interface {
	Minutes(ctx context.Context, meeting rules.Date) (string, error)
}

type Meeting struct {
	Date rules.Date
	Text string
}

// SummaryRequest is what a Summarizer sees.
type SummaryRequest struct {
	Label     string
	Title     string
	Effective rules.Date
	Notes     string
	Minutes   []Meeting
}

// Summarizer condenses notes and minutes into a commit body.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// Cache stores summaries so rebuilds reproduce identical messages.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Builder struct {
	minutes    MinutesSource
	summarizer Summarizer
	cache      Cache
	log        zerolog.Logger
}

type Option func(*Builder)

func WithMinutes(source MinutesSource) Option {
	return func(b *Builder) { b.minutes = source }
}

func WithSummarizer(s Summarizer) Option {
	return func(b *Builder) { b.summarizer = s }
}

func WithCache(c Cache) Option {
	return func(b *Builder) { b.cache = c }
}

func New(log zerolog.Logger, opts ...Option) *Builder {
	b := &Builder{log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subject is the first line, e.g. "Rule 28: Update effective March 1, 2003".
func Subject(in Input) string {
	return fmt.Sprintf("%s: Update effective %s", in.Document.DisplayLabel(), in.Record.Effective.Long())
}

// Fallback is the minimal message used when nothing else can be built.
func Fallback(in Input) string {
	if in.Correction {
		return Subject(in) + "\n\n" + CorrectionNote
	}
	return Subject(in)
}

// Build returns subject, blank line and body.
func (b *Builder) Build(ctx context.Context, in Input) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("document", in.Document.ID.String()).Msg("message build failed, using fallback")
			msg = Fallback(in)
		}
	}()

	notes := b.notesBody(ctx, in)
	var body strings.Builder
	if title := strings.TrimSpace(in.Record.Title); title != "" {
		body.WriteString(title)
		body.WriteString("\n")
	}
	if in.Record.Locator != "" {
		fmt.Fprintf(&body, "Source: %s\n", in.Record.Locator)
	}
	status := "historical"
	if in.Record.Current() {
		status = "current"
	}
	fmt.Fprintf(&body, "Status: %s\n", status)
	if notes != "" {
		body.WriteString("\nExplanatory Notes:\n")
		body.WriteString(notes)
		body.WriteString("\n")
	}
	if in.Correction {
		body.WriteString("\n")
		body.WriteString(CorrectionNote)
		body.WriteString("\n")
	}
	return Subject(in) + "\n\n" + strings.TrimRight(body.String(), "\n")
}

func (b *Builder) notesBody(ctx context.Context, in Input) string {
	notes := strings.TrimSpace(in.Record.Notes)
	if notes == "" {
		return ""
	}
	trimmed := TrimNotes(notes, in.Record.Effective)
	if b.summarizer == nil {
		return trimmed
	}

	key := b.cacheKey(in)
	if b.cache != nil {
		cached, ok, err := b.cache.Get(ctx, key)
		if err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("summary cache read failed")
		} else if ok {
			return cached
		}
	}

	req := SummaryRequest{
		Label:     in.Document.DisplayLabel(),
		Title:     in.Record.Title,
		Effective: in.Record.Effective,
		Notes:     notes,
		Minutes:   b.meetings(ctx, in, notes),
	}
	summary, err := b.summarizer.Summarize(ctx, req)
	summary = strings.TrimSpace(summary)
	if err != nil || len(summary) < 10 {
		b.log.Warn().Err(err).
			Str("document", in.Document.ID.String()).
			Str("effective", in.Record.Effective.String()).
			Msg("summary unavailable, using trimmed notes")
		return trimmed
	}
	if b.cache != nil {
		if err := b.cache.Set(ctx, key, summary); err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("summary cache write failed")
		}
	}
	return summary
}

func (b *Builder) meetings(ctx context.Context, in Input, notes string) []Meeting {
	if b.minutes == nil {
		return nil
	}
	var out []Meeting
	for _, d := range RelevantMeetings(MeetingDates(notes), in.Record.Effective, in.Previous) {
		text, err := b.minutes.Minutes(ctx, d)
		if err != nil {
			b.log.Warn().Err(err).Str("meeting", d.String()).Msg("committee minutes unavailable")
			continue
		}
		if strings.TrimSpace(text) != "" {
			out = append(out, Meeting{Date: d, Text: text})
		}
	}
	return out
}

// cacheKey covers everything the summary depends on.
func (b *Builder) cacheKey(in Input) string {
	prev := ""
	if in.Previous != nil {
		prev = in.Previous.String()
	}
	return normalize.Digest(strings.Join([]string{
		in.Document.ID.String(),
		in.Record.Key().String(),
		prev,
		normalize.Digest(in.Record.Notes),
	}, "\x00"))
}
