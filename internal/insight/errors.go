package insight

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of typed failure categories the pipeline can
// surface. Façades map transport failures onto these; the flow engine makes
// control decisions on the kind, never on string matching.
type ErrorKind string

const (
	// Transport / upstream.
	KindModelUnavailable     ErrorKind = "model_unavailable"
	KindModelMalformed       ErrorKind = "model_malformed"
	KindWarehouseUnavailable ErrorKind = "warehouse_unavailable"
	KindQueryInvalid         ErrorKind = "query_invalid"
	KindQueryTimeout         ErrorKind = "query_timeout"
	KindAccessDenied         ErrorKind = "access_denied"

	// Classification.
	KindClassificationFailed    ErrorKind = "classification_failed"
	KindClassificationMalformed ErrorKind = "classification_malformed"

	// Specialist.
	KindSpecialistFailed ErrorKind = "specialist_failed"
	KindPartialData      ErrorKind = "partial_data"

	// Validator.
	KindQualityRejected ErrorKind = "quality_rejected"

	// Flow.
	KindTimedOut           ErrorKind = "timed_out"
	KindOverloaded         ErrorKind = "overloaded"
	KindPreconditionFailed ErrorKind = "precondition_failed"

	// Input.
	KindInvalidRequest ErrorKind = "invalid_request"
)

// Error is the typed failure surfaced at package boundaries. Fields beyond
// Kind and Message are populated only where the error kind defines them.
type Error struct {
	Kind    ErrorKind
	Message string

	TaskID        string
	ElapsedMs     int64
	RetryAfterMs  int64
	RevisionsUsed int
	LastFeedback  []string

	wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.wrapped }

// Is matches two pipeline errors by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewError builds a typed pipeline error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a typed pipeline error around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// KindOf extracts the error kind, or "" when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the typed pipeline error from a chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
