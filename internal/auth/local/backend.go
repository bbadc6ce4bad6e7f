package local

import (
	"context"
	"time"
)

// LoginRequest carries primary credentials to the backend.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// TokenBundle is the backend's token response.
type TokenBundle struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Profile is the account as the backend describes it. Role is the backend's
// raw vocabulary (ROLE_*).
type Profile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Role           string `json:"role"`
	AccountKind    string `json:"account_kind"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// TwoFactorStatus is the account's step-up policy.
type TwoFactorStatus struct {
	Enabled     bool   `json:"enabled"`
	Method      string `json:"method,omitempty"`
	Contact     string `json:"contact,omitempty"`
	BackupCodes bool   `json:"backup_codes"`
}

// LoginResponse is a successful primary authentication. Accounts with
// two-factor enabled get a StepUp handle and no tokens; the handle is
// exchanged for tokens with VerifyStepUp or RedeemBackupCode.
type LoginResponse struct {
	Tokens    TokenBundle     `json:"tokens"`
	StepUp    *StepUp         `json:"step_up,omitempty"`
	Profile   Profile         `json:"profile"`
	TwoFactor TwoFactorStatus `json:"two_factor"`
}

// StepUp is a single-use handle for completing a two-factor login.
type StepUp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TOTPEnrollment is a pending authenticator-app enrolment.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// Paths of the JSON-over-HTTP backend contract.
const (
	PathLogin            = "/v1/auth/login"
	PathRefresh          = "/v1/auth/refresh"
	PathPasswordResetAsk = "/v1/auth/password/reset-request"
	PathPasswordReset    = "/v1/auth/password/reset"
	PathTOTPEnroll       = "/v1/auth/two-factor/totp/enroll"
	PathTOTPConfirm      = "/v1/auth/two-factor/totp/confirm"
	PathStepUpVerify     = "/v1/auth/two-factor/verify"
	PathBackupCodeRedeem = "/v1/auth/two-factor/backup/redeem"
)

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetAsk struct {
	Identifier string `json:"identifier"`
}

type PasswordReset struct {
	Token     string `json:"token"`
	NewSecret string `json:"new_secret"`
}

// CodeRequest carries a TOTP code for the bearer's account.
type CodeRequest struct {
	Code string `json:"code"`
}

// StepUpRequest carries a second-factor or backup code for a step-up handle.
type StepUpRequest struct {
	StepUpToken string `json:"step_up_token"`
	Code        string `json:"code"`
}

type BackupCodes struct {
	BackupCodes []string `json:"backup_codes"`
}

// Backend is the request/response primitive to the credential backend.
// Rejections are *dErrors.Error values with stable codes; any other error is
// an infrastructure failure.
type Backend interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error)
	RequestPasswordReset(ctx context.Context, identifier string) error
	ResetPassword(ctx context.Context, token, newSecret string) error
	BeginTOTPEnrollment(ctx context.Context, accessToken string) (*TOTPEnrollment, error)
	ConfirmTOTPEnrollment(ctx context.Context, accessToken, code string) ([]string, error)
	// VerifyStepUp checks the account's second factor and, on success,
	// consumes the handle and returns the session tokens. A wrong code is a
	// two_factor_mismatch rejection; two_factor_exhausted and account_locked
	// end the step-up.
	VerifyStepUp(ctx context.Context, stepUpToken, code string) (*TokenBundle, error)
	// RedeemBackupCode is VerifyStepUp with a single-use backup code.
	RedeemBackupCode(ctx context.Context, stepUpToken, code string) (*TokenBundle, error)
}
