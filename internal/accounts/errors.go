// ABOUTME: Typed failure taxonomy for account workflows
// ABOUTME: Validation, not-found, and internal failures mapped to HTTP by the boundary

package accounts

import (
	"errors"

	"github.com/shoplane/shoplane-auth/internal/validate"
)

// FailureKind classifies a workflow failure. The HTTP boundary maps kinds to
// status codes; the workflows themselves never format responses.
type FailureKind int

const (
	// FailureValidation is a structured, field-keyed input failure (HTTP 400).
	FailureValidation FailureKind = iota
	// FailureNotFound covers unknown emails, codes, and sessions (HTTP 404).
	FailureNotFound
	// FailureInternal covers store or issuance failures after valid input (HTTP 500).
	FailureInternal
)

// Error is the typed failure returned by every workflow operation.
type Error struct {
	Kind    FailureKind
	Message string
	Fields  validate.Errors // set for validation failures only
}

func (e *Error) Error() string {
	return e.Message
}

// Invalid builds a validation failure from field-keyed errors.
func Invalid(fields validate.Errors) *Error {
	return &Error{Kind: FailureValidation, Message: "The given data was invalid.", Fields: fields}
}

// InvalidMessage builds a validation failure with a bare message.
func InvalidMessage(msg string) *Error {
	return &Error{Kind: FailureValidation, Message: msg}
}

// NotFound builds a not-found failure.
func NotFound(msg string) *Error {
	return &Error{Kind: FailureNotFound, Message: msg}
}

// Internal builds an internal failure.
func Internal(msg string) *Error {
	return &Error{Kind: FailureInternal, Message: msg}
}

// AsError extracts a workflow *Error from err, or wraps unexpected errors as
// an internal failure.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("Internal server error")
}
