package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rulehistory/internal/rules"
)

const rule28Notes = `Rule 28 was adopted effective March 1, 1990, and has been amended several times.

Subdivision (b) was amended, effective March 1, 2003, to require a table of contents.

Paragraph (b)(7) was amended, effective June 1, 2010, to limit the length of briefs.

Briefs must be typed on letter-size paper.

SOURCES: Joint Procedure Committee Minutes of [September 26-27, 2002](https://www.ndcourts.gov/committee/minutes-2002-09.pdf), page 5; January 28, 2010, pages 2-4; February 17-18, 1983.`

func TestMeetingDates(t *testing.T) {
	got := MeetingDates(rule28Notes)
	assert.Equal(t, []rules.Date{
		rules.NewDate(2002, time.September, 26),
		rules.NewDate(2010, time.January, 28),
		rules.NewDate(1983, time.February, 17),
	}, got)

	assert.Empty(t, MeetingDates("No sources here."))
}

func TestRelevantMeetings(t *testing.T) {
	dates := MeetingDates(rule28Notes)
	prev := rules.NewDate(2003, time.March, 1)

	assert.Equal(t, []rules.Date{rules.NewDate(2010, time.January, 28)},
		RelevantMeetings(dates, rules.NewDate(2010, time.June, 1), &prev))
	assert.Equal(t, []rules.Date{rules.NewDate(2002, time.September, 26), rules.NewDate(1983, time.February, 17)},
		RelevantMeetings(dates, rules.NewDate(2003, time.March, 1), nil))
}

func TestTrimNotesKeepsDatedAndGeneralParagraphs(t *testing.T) {
	got := TrimNotes(rule28Notes, rules.NewDate(2003, time.March, 1))
	assert.Equal(t, "Subdivision (b) was amended, effective March 1, 2003, to require a table of contents.\n\n"+
		"Briefs must be typed on letter-size paper.", got)
}

func TestTrimNotesMatchesZeroPaddedDay(t *testing.T) {
	notes := "Rule 3 was adopted.\n\nAmended effective June 01, 2010, to fix a cross-reference."
	assert.Equal(t, "Amended effective June 01, 2010, to fix a cross-reference.",
		TrimNotes(notes, rules.NewDate(2010, time.June, 1)))
}
