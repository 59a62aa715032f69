package message

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulehistory/internal/rules"
)

type fakeSummarizer struct {
	calls   int
	summary string
	err     error
	last    SummaryRequest
}

func (f *fakeSummarizer) Summarize(_ context.Context, req SummaryRequest) (string, error) {
	f.calls++
	f.last = req
	return f.summary, f.err
}

type fakeMinutes map[rules.Date]string

func (f fakeMinutes) Minutes(_ context.Context, d rules.Date) (string, error) {
	text, ok := f[d]
	if !ok {
		return "", errors.New("not published")
	}
	return text, nil
}

func input() Input {
	prev := rules.NewDate(2003, time.March, 1)
	return Input{
		Document: rules.Document{ID: rules.DocumentID{Category: "ndrappp", Slug: "rule-28"}, Label: "Rule 28"},
		Record: rules.VersionRecord{
			Effective: rules.NewDate(2010, time.June, 1),
			Locator:   "https://www.ndcourts.gov/legal-resources/rules/ndrappp/28",
			Title:     "RULE 28. BRIEFS",
			Notes:     rule28Notes,
		},
		Previous: &prev,
	}
}

func TestBuildWithoutSummarizerUsesTrimmedNotes(t *testing.T) {
	b := New(zerolog.Nop())
	got := b.Build(context.Background(), input())

	assert.Equal(t, "Rule 28: Update effective June 1, 2010\n\n"+
		"RULE 28. BRIEFS\n"+
		"Source: https://www.ndcourts.gov/legal-resources/rules/ndrappp/28\n"+
		"Status: current\n"+
		"\n"+
		"Explanatory Notes:\n"+
		"Paragraph (b)(7) was amended, effective June 1, 2010, to limit the length of briefs.\n\n"+
		"Briefs must be typed on letter-size paper.", got)
}

func TestBuildHistoricalCorrection(t *testing.T) {
	in := input()
	obsolete := rules.NewDate(2015, time.March, 1)
	in.Record.Obsolete = &obsolete
	in.Record.Notes = ""
	in.Correction = true

	got := New(zerolog.Nop()).Build(context.Background(), in)
	assert.Equal(t, "Rule 28: Update effective June 1, 2010\n\n"+
		"RULE 28. BRIEFS\n"+
		"Source: https://www.ndcourts.gov/legal-resources/rules/ndrappp/28\n"+
		"Status: historical\n\n"+
		CorrectionNote, got)
}

func TestBuildSummarizesWithRelevantMinutesAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	defer cache.Close()

	summarizer := &fakeSummarizer{summary: "Limits brief length to 50 pages."}
	minutes := fakeMinutes{rules.NewDate(2010, time.January, 28): "Rule 28 discussion."}
	b := New(zerolog.Nop(), WithSummarizer(summarizer), WithMinutes(minutes), WithCache(cache))

	first := b.Build(context.Background(), input())
	second := b.Build(context.Background(), input())

	assert.Equal(t, first, second)
	assert.Contains(t, first, "Explanatory Notes:\nLimits brief length to 50 pages.")
	assert.Equal(t, 1, summarizer.calls)
	require.Len(t, summarizer.last.Minutes, 1)
	assert.Equal(t, "Rule 28 discussion.", summarizer.last.Minutes[0].Text)
	assert.Len(t, mr.Keys(), 1)
}

func TestBuildFallsBackWhenSummarizerFails(t *testing.T) {
	summarizer := &fakeSummarizer{err: errors.New("overloaded")}
	b := New(zerolog.Nop(), WithSummarizer(summarizer))

	got := b.Build(context.Background(), input())
	assert.Contains(t, got, "Paragraph (b)(7) was amended")
	assert.Equal(t, 1, summarizer.calls)
}

func TestFallback(t *testing.T) {
	in := input()
	assert.Equal(t, "Rule 28: Update effective June 1, 2010", Fallback(in))
	in.Document.Label = ""
	in.Correction = true
	assert.Equal(t, "rule-28: Update effective June 1, 2010\n\n"+CorrectionNote, Fallback(in))
}
