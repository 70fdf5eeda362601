package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ConfigInvalid indicates a missing or malformed required setting.
	// Fatal: the run aborts before any mutation.
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// FetchFailed indicates a network or remote failure while fetching.
	// Transient: surfaced per subject, remaining subjects continue.
	FetchFailed ErrorCode = "FETCH_FAILED"
	// UnsupportedCapability indicates the backend rejected a request it
	// does not implement (e.g. --shallow-since against a dumb server).
	// Recoverable by a defined fallback, never surfaced to the caller.
	UnsupportedCapability ErrorCode = "UNSUPPORTED_CAPABILITY"
	// ToolFailed indicates an external tool exited non-zero
	ToolFailed ErrorCode = "TOOL_FAILED"
	// NotFound indicates a requested record or reference doesn't exist
	NotFound ErrorCode = "NOT_FOUND"
	// Timeout indicates a backend command timed out
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// TrackError represents a tracker error with a stable code and optional details
type TrackError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new TrackError
func New(code ErrorCode, message string, cause error) *TrackError {
	return &TrackError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *TrackError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TrackError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *TrackError) WithDetails(details map[string]interface{}) *TrackError {
	e.Details = details
	return e
}

// CodeOf returns the error code of err, or InternalError if err carries none
func CodeOf(err error) ErrorCode {
	var te *TrackError
	if errors.As(err, &te) {
		return te.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
