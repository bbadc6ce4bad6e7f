package accounts

import (
	"context"
	"time"
)

// Store persists accounts and their token records.
//
// Error contract: ErrNotFound when the entity does not exist, ErrExpired or
// ErrAlreadyUsed from the Consume methods, wrapped errors for infrastructure
// failures. Stores are pure I/O; lockout and token policy live in Service.
type Store interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Update(ctx context.Context, account *Account) error

	// RecordFailure increments the failure counter and applies lockedUntil
	// once the counter reaches threshold, in one atomic step.
	RecordFailure(ctx context.Context, id string, threshold int, lockedUntil time.Time) (*Account, error)
	ResetFailures(ctx context.Context, id string) error

	// ConsumeBackupCode removes codeHash from the account if present and
	// reports whether it did. Concurrent callers with the same code see at
	// most one true.
	ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error)

	SaveRefreshToken(ctx context.Context, token RefreshToken) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
	RevokeRefreshTokens(ctx context.Context, accountID string) error

	SaveResetToken(ctx context.Context, token ResetToken) error
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*ResetToken, error)

	SaveStepUp(ctx context.Context, step StepUp) error
	// FindStepUp returns ErrNotFound for unknown or consumed handles and
	// ErrExpired once ExpiresAt has passed.
	FindStepUp(ctx context.Context, tokenHash string, now time.Time) (*StepUp, error)
	// RecordStepUpFailure decrements the attempts left and returns the new
	// count. The step-up is deleted when the count reaches zero.
	RecordStepUpFailure(ctx context.Context, tokenHash string) (int, error)
	// ConsumeStepUp deletes the step-up. Concurrent callers see at most one
	// nil error; the others get ErrNotFound.
	ConsumeStepUp(ctx context.Context, tokenHash string) error
}
