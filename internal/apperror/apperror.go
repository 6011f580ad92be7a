// Package apperror defines the error categories surfaced to API callers.
package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an error for the caller.
type Code string

const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeDatabase   Code = "DATABASE_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Error is a categorized error. Message is safe to show to the end user;
// Err carries the underlying cause for logs.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var msg string
	if e.Op != "" {
		msg = e.Op + ": "
	}
	msg += e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: CodeNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// NotFound reports a missing entity, e.g. NotFound("appointment.Get", "Termin").
func NotFound(op, entity string) *Error {
	return &Error{Code: CodeNotFound, Op: op, Message: entity + " nicht gefunden"}
}

func Validation(op, message string) *Error {
	return &Error{Code: CodeValidation, Op: op, Message: message}
}

func Database(op string, err error) *Error {
	return &Error{Code: CodeDatabase, Op: op, Message: "Datenbankfehler", Err: err}
}

func Internal(op string, err error) *Error {
	return &Error{Code: CodeInternal, Op: op, Message: "Unerwarteter Fehler", Err: err}
}

// Wrap attaches a cause to an existing categorized error.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// CodeOf returns the category of err, INTERNAL_ERROR for uncategorized errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message for err. Causes are never included.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Unerwarteter Fehler"
}

// Newf is a convenience for validation errors with formatted messages.
func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}
