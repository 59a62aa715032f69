package message

import (
	"regexp"
	"slices"
	"strings"

	"rulehistory/internal/rules"
)

const monthNames = `(?:January|February|March|April|May|June|July|August|September|October|November|December)`

var (
	sourcesPattern    = regexp.MustCompile(`(?is)SOURCES?:(.+)`)
	linkedDatePattern = regexp.MustCompile(`(?i)\[([^\]]+)\]\(https?://[^)]*committee[^)]*\)`)
	plainDatePattern  = regexp.MustCompile(monthNames + `\s+\d{1,2}(?:-\d{1,2})?,\s*\d{4}`)
	dayRangePattern   = regexp.MustCompile(`(\d{1,2})-\d{1,2}`)
	commaPattern      = regexp.MustCompile(`\s*,\s*`)

	summaryPattern   = regexp.MustCompile(`(?i)was (?:amended|adopted|approved)`)
	sourcesPrefix    = regexp.MustCompile(`(?i)^SOURCES?:`)
	effectivePattern = regexp.MustCompile(`(?i)effective\s+` + monthNames)
	fullDatePattern  = regexp.MustCompile(monthNames + `\s+\d{1,2},\s*\d{4}`)
)

// MeetingDates extracts committee meeting dates cited in the SOURCES
// paragraph, linked or plain. A day range such as "February 17-18, 1983"
// yields its first day.
func MeetingDates(notes string) []rules.Date {
	match := sourcesPattern.FindStringSubmatch(notes)
	if match == nil {
		return nil
	}
	sources := match[1]

	var dates []rules.Date
	add := func(text string) {
		text = dayRangePattern.ReplaceAllString(strings.Join(strings.Fields(text), " "), "$1")
		d, err := rules.ParseDate(commaPattern.ReplaceAllString(text, ", "))
		if err != nil || slices.Contains(dates, d) {
			return
		}
		dates = append(dates, d)
	}
	for _, m := range linkedDatePattern.FindAllStringSubmatch(sources, -1) {
		add(m[1])
	}
	for _, m := range plainDatePattern.FindAllString(sources, -1) {
		add(m)
	}
	return dates
}

// RelevantMeetings keeps meetings in (previous, effective]. Without a
// previous version every meeting up to effective counts.
func RelevantMeetings(dates []rules.Date, effective rules.Date, previous *rules.Date) []rules.Date {
	var out []rules.Date
	for _, d := range dates {
		if d.After(effective) {
			continue
		}
		if previous != nil && !d.After(*previous) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// TrimNotes keeps the explanatory-note paragraphs relevant to one version:
// paragraphs naming its effective date and undated general guidance. The
// opening list of amendment dates and the SOURCES paragraph are dropped.
func TrimNotes(notes string, effective rules.Date) string {
	variants := dateVariants(effective)
	mentions := func(p string) bool {
		for _, v := range variants {
			if strings.Contains(p, v) {
				return true
			}
		}
		return false
	}

	var kept []string
	for i, paragraph := range strings.Split(strings.ReplaceAll(notes, "\r\n", "\n"), "\n\n") {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}
		if i == 0 && summaryPattern.MatchString(p) && !mentions(p) {
			continue
		}
		if sourcesPrefix.MatchString(p) {
			continue
		}
		if mentions(p) {
			kept = append(kept, p)
			continue
		}
		if !effectivePattern.MatchString(p) && !fullDatePattern.MatchString(p) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func dateVariants(d rules.Date) []string {
	padded := d.At(0).Format("January 02, 2006")
	plain := d.Long()
	if padded == plain {
		return []string{plain}
	}
	return []string{padded, plain}
}
