package fhir

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure so that handlers can map it to an HTTP
// status without inspecting message text. Kinds are preserved end to end:
// a validation failure raised deep in a translator reaches the handler as
// KindValidation, never as a generic server error.
type ErrorKind int

const (
	// KindStore is the default for unclassified failures: the underlying
	// store call failed, timed out, or was cancelled.
	KindStore ErrorKind = iota
	// KindConfiguration marks a missing or ambiguous required setting,
	// raised at first use with the offending key in the message.
	KindConfiguration
	// KindValidation marks a client-correctable structural problem
	// (schema mismatch, duplicate slot, missing required agent).
	KindValidation
	// KindNotFound marks an absent entity.
	KindNotFound
	// KindConflict marks an identifier problem on create/update.
	KindConflict
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// NewConfiguration reports a configuration problem for the named key.
func NewConfiguration(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// NewValidation reports a structural validation failure.
func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NewNotFound reports an absent resource.
func NewNotFound(resourceType, id string) *Error {
	return &Error{Kind: KindNotFound, Msg: resourceType + "/" + id + " not found"}
}

// NewConflict reports an identifier conflict on create/update.
func NewConflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// NewStore wraps a failed store call. Context cancellation from the store
// is treated the same way: the caller owns timeouts, the core only reports.
func NewStore(op string, cause error) *Error {
	return &Error{Kind: KindStore, Msg: op, Cause: cause}
}

// KindOf extracts the kind from any error, defaulting to KindStore for
// errors that did not originate in this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// StatusOf maps an error to the HTTP status the facade contract requires.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// OutcomeOf renders an error as an OperationOutcome with the issue type
// matching its kind.
func OutcomeOf(err error) *OperationOutcome {
	switch KindOf(err) {
	case KindNotFound:
		return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, err.Error())
	case KindValidation:
		return NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, err.Error())
	case KindConflict:
		return NewOperationOutcome(IssueSeverityError, IssueTypeConflict, err.Error())
	case KindConfiguration:
		return NewOperationOutcome(IssueSeverityFatal, IssueTypeException, err.Error())
	default:
		return NewOperationOutcome(IssueSeverityError, IssueTypeException, err.Error())
	}
}
