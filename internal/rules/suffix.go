package rules

import "strings"

// Suffix disambiguates same-day revisions of one document. The publisher uses
// small integers ("rule-28-10" carries suffix "10"), so all-digit suffixes
// compare numerically and sort before anything else; the empty suffix sorts first.
type Suffix string

func (s Suffix) Compare(other Suffix) int {
	if s == other {
		return 0
	}
	if s == "" {
		return -1
	}
	if other == "" {
		return 1
	}
	a, aNum := numeric(string(s))
	b, bNum := numeric(string(other))
	switch {
	case aNum && bNum:
		if c := compareDigits(a, b); c != 0 {
			return c
		}
		return strings.Compare(string(s), string(other))
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(string(s), string(other))
	}
}

func (s Suffix) String() string { return string(s) }

func numeric(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	trimmed := strings.TrimLeft(s, "0")
	return trimmed, true
}

// compareDigits compares two digit strings without leading zeros by value.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		return cmpInt(len(a), len(b))
	}
	return strings.Compare(a, b)
}

// NaturalCompare orders strings with embedded numbers by value, so "rule-2"
// sorts before "rule-10". Strings that compare equal naturally ("rule-01",
// "rule-1") fall back to byte order so the result is a total order.
func NaturalCompare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			da, _ := numeric(a[si:i])
			db, _ := numeric(b[sj:j])
			if c := compareDigits(da, db); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			return cmpInt(int(ca), int(cb))
		}
		i++
		j++
	}
	if c := cmpInt(len(a)-i, len(b)-j); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// ParseSuffix trims the raw value and strips a leading "-" left over from
// slicing a versioned slug ("rule-28-10" minus "rule-28").
func ParseSuffix(raw string) Suffix {
	return Suffix(strings.TrimPrefix(strings.TrimSpace(raw), "-"))
}
