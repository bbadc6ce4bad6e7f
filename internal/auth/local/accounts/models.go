package accounts

import (
	"time"
)

// Account is a locally-managed identity. Role holds the backend vocabulary
// (ROLE_*); normalization happens on the consuming side.
type Account struct {
	ID             string
	Email          string
	DisplayName    string
	PasswordHash   string
	Role           string
	AccountKind    string
	OrganizationID string

	TwoFactorEnabled  bool
	TwoFactorMethod   string
	TwoFactorContact  string
	TOTPSecret        string
	PendingTOTPSecret string
	BackupCodeHashes  []string

	FailedAttempts int
	LockedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLockedAt reports whether a hard lock is active at now.
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// RefreshToken is stored by digest; the plaintext only exists in responses.
type RefreshToken struct {
	TokenHash string
	AccountID string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// ResetToken is a single-use password reset token, stored by digest.
type ResetToken struct {
	TokenHash string
	AccountID string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// NewAccount is the input to Register.
type NewAccount struct {
	Email            string
	DisplayName      string
	Password         string
	Role             string
	AccountKind      string
	OrganizationID   string
	TwoFactorMethod  string
	TwoFactorContact string
}

// StepUp is a pending second-factor check opened by a password login on a
// two-factor account. The handle and any out-of-band code are stored by
// digest. Tokens are issued only when the step-up is consumed.
type StepUp struct {
	TokenHash         string
	AccountID         string
	CodeHash          string
	AttemptsRemaining int
	ExpiresAt         time.Time
	CreatedAt         time.Time
}
