package core

// error_messages.go defines the error taxonomy of the record service.
//
// Every failure a caller can act on is an *Error carrying a stable,
// machine-readable Code and a human-readable Message:
//
//	MISSING_EMAIL        - upsert candidate has no email
//	INVALID_PAGE         - page < 1
//	INVALID_PAGE_SIZE    - pageSize < 1
//	INVALID_DATE_RANGE   - start date after end date
//	INVALID_DATE         - unparseable or absent date at the filter boundary
//	INVALID_INPUT        - batch payload is not a sequence
//	NO_DATA_FOUND        - export over an empty result (expected, not a fault)
//	CSV_GENERATION_ERROR - serialization fault (internal, message is generic)
//	TOO_MANY_UPLOADS     - batch limiter saturated
//
// Anything else is mapped to ERR000 by MapError and must not leak its
// technical text to clients.

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeMissingEmail       Code = "MISSING_EMAIL"
	CodeInvalidPage        Code = "INVALID_PAGE"
	CodeInvalidPageSize    Code = "INVALID_PAGE_SIZE"
	CodeInvalidDateRange   Code = "INVALID_DATE_RANGE"
	CodeInvalidDateFormat  Code = "INVALID_DATE"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNoDataFound        Code = "NO_DATA_FOUND"
	CodeCsvGenerationError Code = "CSV_GENERATION_ERROR"
	CodeTooManyUploads     Code = "TOO_MANY_UPLOADS"
	CodeRequestTimeout     Code = "REQUEST_TIMEOUT"
	CodeRequestCancelled   Code = "REQUEST_CANCELLED"
	CodeUnknown            Code = "ERR000"
)

// Error is a categorized service error. Two Errors match under errors.Is
// when their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors, one per code.
var (
	ErrMissingEmail      = &Error{Code: CodeMissingEmail, Message: "Email is required"}
	ErrInvalidPage       = &Error{Code: CodeInvalidPage, Message: "Page number must be greater than 0"}
	ErrInvalidPageSize   = &Error{Code: CodeInvalidPageSize, Message: "Page size must be greater than 0"}
	ErrInvalidDateRange  = &Error{Code: CodeInvalidDateRange, Message: "Start date must be before end date"}
	ErrInvalidDateFormat = &Error{Code: CodeInvalidDateFormat, Message: "Invalid date format"}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput, Message: "Invalid input: constituents must be an array"}
	ErrNoDataFound       = &Error{Code: CodeNoDataFound, Message: "No constituents found in the specified date range"}
	ErrCsvGeneration     = &Error{Code: CodeCsvGenerationError, Message: "Failed to generate CSV"}
	ErrTooManyUploads    = &Error{Code: CodeTooManyUploads, Message: "Too many concurrent uploads, please try again later"}
)

// wrapError returns a copy of sentinel that records cause for logging.
// The message stays the sentinel's so the cause never reaches clients.
func wrapError(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, cause: cause}
}

// withDetail returns a copy of sentinel with extra context appended to the message.
func withDetail(sentinel *Error, format string, args ...any) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message + ": " + fmt.Sprintf(format, args...)}
}

// UserMessage is the client-facing view of an error.
type UserMessage struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
}

var defaultMessage = UserMessage{
	Code:    CodeUnknown,
	Message: "An unexpected error occurred",
}

// MapError converts err to a client-safe message. Service errors keep their
// code and message; context errors get dedicated codes; everything else
// collapses to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var se *Error
	if errors.As(err, &se) {
		return UserMessage{Code: se.Code, Message: se.Message}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return UserMessage{Code: CodeRequestTimeout, Message: "Request timed out"}
	case errors.Is(err, context.Canceled):
		return UserMessage{Code: CodeRequestCancelled, Message: "Request was cancelled"}
	}

	return defaultMessage
}

// CodeOf returns the code of err, or ERR000 when err is not a service error.
func CodeOf(err error) Code {
	return MapError(err).Code
}
