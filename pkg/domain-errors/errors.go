// Package domainerrors carries stable, transport-agnostic error codes.
//
// Services return *Error values so handlers and callers can branch on Code
// without string matching. Infrastructure layers return sentinel errors
// (pkg/platform/sentinel) which services translate into a Code here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier. Values are part of the
// external contract (HTTP bodies, CLI output, audit reasons) and must not change.
type Code string

// Generic codes.
const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
)

// Authentication codes. These are the rejection reasons reported by the
// session orchestrator.
const (
	CodeInvalidCredentials      Code = "invalid_credentials"
	CodeAccountLocked           Code = "account_locked"
	CodeTwoFactorExhausted      Code = "two_factor_exhausted"
	CodeTwoFactorAbandoned      Code = "two_factor_abandoned"
	CodeTwoFactorMismatch       Code = "two_factor_mismatch"
	CodeChallengeNotFound       Code = "challenge_not_found"
	CodeTokenExpired            Code = "token_expired"
	CodeProviderUnavailable     Code = "provider_unavailable"
	CodeCorruptPersistedSession Code = "corrupt_persisted_session"
	CodeWeakSecret              Code = "weak_secret"
	CodeInvalidResetToken       Code = "invalid_or_expired_reset_token"
	CodeUseFederatedLogin       Code = "use_federated_login"
)

// Error is a coded domain error. Err, when set, is the underlying cause and is
// reachable through errors.Unwrap.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on code and, when the target carries one, message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or an empty string.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
