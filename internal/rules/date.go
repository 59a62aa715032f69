package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CommitHour is the UTC hour every backdated commit is stamped with.
const CommitHour = 12

// earliestYear rejects the publisher's placeholder dates such as 01/01/0001.
const earliestYear = 1889

var (
	ErrEmptyDate    = errors.New("empty date")
	ErrInvalidDate  = errors.New("invalid date")
	ErrSentinelDate = errors.New("sentinel date")
)

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate accepts ISO dates, the publisher's M/D/YYYY table format and long-form dates.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}, ErrEmptyDate
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		d := DateOf(t)
		if d.Year < earliestYear {
			return Date{}, fmt.Errorf("%w: %q", ErrSentinelDate, value)
		}
		return d, nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// At returns the instant hour:00 UTC on d.
func (d Date) At(hour int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, time.UTC)
}

// CommitTime is the author and committer timestamp for a version effective on d.
func (d Date) CommitTime() time.Time {
	return d.At(CommitHour)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Long formats d the way the publisher writes dates in prose, e.g. "March 1, 2003".
func (d Date) Long() string {
	return fmt.Sprintf("%s %d, %d", d.Month, d.Day, d.Year)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
