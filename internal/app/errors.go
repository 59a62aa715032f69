package app

import (
	"errors"
	"fmt"
)

// Exit codes returned by the CLI for DomainError codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitConflicts     = 3
	ExitWriteFailure  = 4
	ExitNotInitialized = 5
)

const (
	CodeInvalidArgument        = "invalid_argument"
	CodeRepositoryMissing      = "repository_missing"
	CodeRepositoryWriteFailure = "repository_write_failure"
	CodeDocumentNotFound       = "document_not_found"
)

type DomainError struct {
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

func domainError(code, message string, details any, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: details,
		Err:     err,
	}
}

// ExitCode maps an error returned by Service to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var de *DomainError
	if !errors.As(err, &de) {
		return ExitFailure
	}
	switch de.Code {
	case CodeInvalidArgument, CodeDocumentNotFound:
		return ExitUsage
	case CodeRepositoryMissing:
		return ExitNotInitialized
	case CodeRepositoryWriteFailure:
		return ExitWriteFailure
	default:
		return ExitFailure
	}
}
