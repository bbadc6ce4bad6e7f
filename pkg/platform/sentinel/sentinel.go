// Package sentinel holds infrastructure-fact errors shared by stores and
// transports. Services translate them into domain error codes; callers never
// see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound: the key, account, token or challenge does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired: a reset token, challenge or session is past its deadline.
	ErrExpired = errors.New("expired")
	// ErrAlreadyUsed: a single-use value (reset token, backup code) was consumed.
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: an entity is in the wrong state for the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrCorrupt: persisted bytes could not be decoded.
	ErrCorrupt = errors.New("corrupt")
	// ErrUnavailable: a remote dependency could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
