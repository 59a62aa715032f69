// Package source provides version records to the engine. Fetchers are
// pull-based: one call lists a category's documents, one call per document
// returns its raw versions.
package source

import (
	"context"
	"errors"
	"fmt"

	"rulehistory/internal/rules"
)

type Fetcher interface {
	Documents(ctx context.Context, category string) ([]rules.Document, error)
	FetchVersions(ctx context.Context, doc rules.Document) ([]rules.RawVersion, error)
}

// TransientError marks a failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err, or anything it wraps, is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// DocumentError ties a fetch failure to the document it concerns.
type DocumentError struct {
	Document rules.DocumentID
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Document, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
