// Package domainerrors provides coded errors shared across all domain
// services. Services create these at trust boundaries; transports translate
// the code into their own status vocabulary (see pkg/platform/httputil).
//
// Stores should NOT use this package. They return pkg/platform/sentinel
// errors (infrastructure facts), which services wrap into coded errors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for programmatic handling.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"

	// Token layer. These never accompany partially decrypted data.
	CodeTokenInvalid Code = "token_invalid"
	CodeTokenExpired Code = "token_expired"
	CodeTokenRevoked Code = "token_revoked"

	// Ledger layer. Actionable precondition failures, not fatal errors.
	CodeInsufficientCredit Code = "insufficient_credit"
	CodeAlreadyConsumed    Code = "already_consumed"

	// Delivery layer. Raised once the retry budget is exhausted.
	CodeDeliveryFailed Code = "delivery_failed"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is already
// a domain error, its code is preserved so services never accidentally
// downgrade a specific failure into CodeInternal.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return &Error{Code: de.Code, Message: message, cause: err}
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for readability at call sites:
//
//	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors so callers always fail closed.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable message, or a generic one for
// unclassified errors so internals never leak to callers.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
