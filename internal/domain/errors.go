package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures surfaced by the service.
type ErrorKind string

const (
	ErrorKindRemoteCall ErrorKind = "REMOTE_CALL"
	ErrorKindParse      ErrorKind = "PARSE"
	ErrorKindNotFound   ErrorKind = "NOT_FOUND"
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindTimedOut   ErrorKind = "TIMED_OUT"
	ErrorKindConflict   ErrorKind = "CONFLICT"
)

// Error is a classified error carrying an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewRemoteCallError wraps a failed completion, image, extraction or tool call.
func NewRemoteCallError(op string, err error) *Error {
	return &Error{Kind: ErrorKindRemoteCall, Message: op + " failed", Err: err}
}

// NewParseError reports malformed directive or structured-output JSON.
func NewParseError(what string, err error) *Error {
	return &Error{Kind: ErrorKindParse, Message: "failed to parse " + what, Err: err}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *Error {
	return &Error{Kind: ErrorKindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// NewValidationError reports bad user input.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewTimedOutError reports a remote call that exceeded its deadline.
func NewTimedOutError(op string, err error) *Error {
	return &Error{Kind: ErrorKindTimedOut, Message: op + " timed out", Err: err}
}

// NewConflictError reports a state transition that is not allowed.
func NewConflictError(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindValidation, ErrorKindParse:
		return http.StatusBadRequest
	case ErrorKindConflict:
		return http.StatusConflict
	case ErrorKindRemoteCall:
		return http.StatusBadGateway
	case ErrorKindTimedOut:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
