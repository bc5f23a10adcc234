// Package apperr implements the coordinator's error taxonomy: a closed set
// of codes that every component returns instead of bare errors, so the HTTP
// layer can translate them to status codes without string matching.
package apperr

import "fmt"

// Code is one of the taxonomy entries from the error handling design.
type Code string

const (
	Unauthorized Code = "unauthorized"
	NotFound     Code = "not_found"
	Conflict     Code = "conflict"
	BadRequest   Code = "bad_request"
	NotOwned     Code = "not_owned"
	NoWork       Code = "no_work"
	Internal     Code = "internal"
	Unavailable  Code = "unavailable"
)

// Error carries a taxonomy code alongside a human message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) *Error { return new(Unauthorized, format, args...) }
func NotFoundf(format string, args ...any) *Error     { return new(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error     { return new(Conflict, format, args...) }
func BadRequestf(format string, args ...any) *Error   { return new(BadRequest, format, args...) }
func NotOwnedf(format string, args ...any) *Error     { return new(NotOwned, format, args...) }
func NoWorkf(format string, args ...any) *Error       { return new(NoWork, format, args...) }
func Unavailablef(format string, args ...any) *Error  { return new(Unavailable, format, args...) }

// Wrap surfaces an underlying error (typically a store failure) under the
// given code, preserving it via Unwrap for logging.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// Internalf wraps a store/serialization failure; per the error handling
// design all such failures surface under this code.
func Internalf(err error) *Error {
	return Wrap(Internal, err)
}

// CodeOf extracts the taxonomy code from err, defaulting to Internal for
// errors that were never classified (a bug, but one the HTTP layer must
// not panic on).
func CodeOf(err error) Code {
	var e *Error
	if err == nil {
		return ""
	}
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return Internal
	}
	return e.Code
}
