// Package apperr defines the error kinds every gateway operation reports.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"autoconnect/pkg/autoconnect"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindNetwork      Kind = "network"
	KindAuthRequired Kind = "auth_required"
	KindInternal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Fields maps request field names to a human readable problem.
	Fields map[string]string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func ValidationFields(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: message, Fields: fields}
}

func Conflict(code, message string, err error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func AuthRequired() *Error {
	return &Error{Kind: KindAuthRequired, Code: "AUTH_REQUIRED", Message: "sign in to continue"}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// FromBackend classifies an error returned by the AutoConnect REST client.
// Errors that are already classified pass through untouched.
func FromBackend(err error, action string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Code: "REQUEST_ABORTED", Message: action + " was interrupted", Err: err}
	}

	var netErr *autoconnect.NetworkError
	if errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Code: "BACKEND_UNREACHABLE", Message: "could not reach the booking service", Err: err}
	}

	var apiErr *autoconnect.APIError
	if !errors.As(err, &apiErr) {
		return Internal(action+" failed", err)
	}

	msg := apiErr.Message
	if msg == "" {
		msg = action + " failed"
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: msg, Err: err}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindAuthRequired, Code: "AUTH_REQUIRED", Message: msg, Err: err}
	case http.StatusNotFound:
		return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: msg, Err: err}
	case http.StatusConflict:
		return &Error{Kind: KindConflict, Code: "CONFLICT", Message: msg, Err: err}
	}
	if apiErr.StatusCode >= 500 {
		return &Error{Kind: KindNetwork, Code: "BACKEND_ERROR", Message: action + " failed, try again later", Err: err}
	}
	return Internal(msg, err)
}
