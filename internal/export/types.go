// Package export renders a document as it read on a given date.
package export

import (
	"errors"

	"rulehistory/internal/rules"
)

type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(raw); f {
	case FormatMarkdown, FormatHTML, FormatPDF, FormatDOCX:
		return f, nil
	case "":
		return FormatHTML, nil
	default:
		return "", errors.New("unsupported format: " + raw)
	}
}

// Request contains parameters for an export operation
type Request struct {
	Document rules.Document
	Path     string
	AsOf     rules.Date
	Format   Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// Version is the recorded version that was in force on the requested date.
	Version rules.RecordedVersion
}

var (
	// ErrNotInForce means the document had no version effective on or before the date.
	ErrNotInForce = errors.New("export: no version in force on date")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
