package model

import (
	"errors"
	"fmt"
)

// Error codes form the versioned vocabulary exposed to API clients.
// Clients branch on Code, never on Message.
const (
	ErrorVocabularyVersion = "1"

	CodeValidation    = "VALIDATION_ERROR"
	CodeAlreadyOpen   = "ALREADY_OPEN"
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyClosed = "ALREADY_CLOSED"
	CodeInvalidState  = "INVALID_STATE"
	CodeTransient     = "TRANSIENT_STORE_ERROR"

	// raised at the HTTP edge, before any domain call
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeRateLimited  = "RATE_LIMITED"
)

// Error is a domain error carrying a stable code.
// errors.Is matches two *Error values by code, so wrapped or re-messaged
// errors still compare equal to the sentinels below.
type Error struct {
	Code    string
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation    = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrAlreadyOpen   = &Error{Code: CodeAlreadyOpen, Message: "a cash session is already open at this location"}
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "cash session not found"}
	ErrAlreadyClosed = &Error{Code: CodeAlreadyClosed, Message: "cash session is already closed"}
	ErrInvalidState  = &Error{Code: CodeInvalidState, Message: "cash session is not open"}
	ErrTransient     = &Error{Code: CodeTransient, Message: "store temporarily unavailable, retry"}
)

// Validation builds a VALIDATION_ERROR for a single field.
func Validation(field, msg string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: msg,
		Fields:  map[string]string{field: msg},
	}
}

// Transient wraps a store failure that is safe to retry.
func Transient(cause error) *Error {
	return &Error{Code: CodeTransient, Message: ErrTransient.Message, cause: cause}
}

// CodeOf returns the domain code of err, or "" for non-domain errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
