// Package normalize canonicalizes fetched rule text so that byte equality
// reflects substantive change only.
package normalize

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

const byteOrderMark = "\ufeff"

// Normalize is total, deterministic and idempotent. It drops byte order marks
// ahead of the first non-blank line, unifies line endings, applies Unicode
// NFC, strips trailing whitespace on every line, collapses runs of blank lines
// to one, drops leading and trailing blank lines and ends non-empty text with
// exactly one newline. Leading indentation, headings and
// line order are preserved.
func Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = norm.NFC.String(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if len(out) == 0 {
			line = strings.TrimLeft(line, byteOrderMark)
		}
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

// Equal reports whether a and b are the same version of a text.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Digest is the hex BLAKE2b-256 of the normalized text.
func Digest(text string) string {
	sum := blake2b.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// ShortDigest is the first 12 hex characters of Digest, for plan listings.
func ShortDigest(text string) string {
	return Digest(text)[:12]
}
