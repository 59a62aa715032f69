package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only blanks", " \n\t\n", ""},
		{"crlf and trailing spaces", "a  \r\nb\t\r\n", "a\nb\n"},
		{"collapse blank runs", "\n\na\n\n\n\nb\n\n", "a\n\nb\n"},
		{"keeps indentation", "  - item\n    nested", "  - item\n    nested\n"},
		{"bom", "\ufeffRULE 1", "RULE 1\n"},
		{"double bom", "\ufeff\ufeffRULE 1", "RULE 1\n"},
		{"bom after blank line", "\n\ufeffRULE 1", "RULE 1\n"},
		{"bom only lines", "\ufeff\n\ufeff \r\n\ufeffRULE 1", "RULE 1\n"},
		{"bom inside text kept", "RULE 1\n\ufeffa", "RULE 1\n\ufeffa\n"},
		{"nfc", "cafe\u0301", "caf\u00e9\n"},
		{"lone cr", "a\rb", "a\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "idempotent")
		})
	}
}

func TestEqualAndDigest(t *testing.T) {
	assert.True(t, Equal("a \r\n\r\n\r\nb", "a\n\nb\n"))
	assert.False(t, Equal("a\nb", "b\na"))

	assert.Equal(t, Digest("x  \n"), Digest("x"))
	assert.Len(t, Digest("x"), 64)
	assert.Equal(t, Digest("x")[:12], ShortDigest("x"))
	assert.NotEqual(t, Digest("x"), Digest("y"))
}
