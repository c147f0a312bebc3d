// Package apperr defines the error taxonomy surfaced to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	Unauthenticated Code = "UNAUTHENTICATED"
	Forbidden       Code = "FORBIDDEN"
	NotFound        Code = "NOT_FOUND"
	Validation      Code = "BAD_USER_INPUT"
	Conflict        Code = "CONFLICT"
	ChatClosed      Code = "CHAT_CLOSED"
	Internal        Code = "INTERNAL"
)

// Issue is a single field-level validation problem.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type Error struct {
	Status  int
	Code    Code
	Message string
	Issues  []Issue
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusFor(code Code) int {
	switch code {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusBadRequest
	case Conflict, ChatClosed:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// New builds an Error with the HTTP status implied by code.
func New(code Code, message string) *Error {
	return &Error{Status: statusFor(code), Code: code, Message: message}
}

// Invalid builds a validation error carrying field issues.
func Invalid(message string, issues ...Issue) *Error {
	e := New(Validation, message)
	e.Issues = issues
	return e
}

// Wrap turns an unexpected error into an Internal error, leaving taxonomy
// errors untouched.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Status: http.StatusInternalServerError, Code: Internal, Message: fmt.Sprintf("%s: %v", message, err)}
}

// CodeOf returns the taxonomy code for err, or Internal for foreign errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
