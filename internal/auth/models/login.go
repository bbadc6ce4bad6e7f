package models

import (
	"strings"
	"time"

	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/email"
)

// CredentialKind selects the identity source for a login attempt.
type CredentialKind string

const (
	CredentialPassword  CredentialKind = "password"
	CredentialFederated CredentialKind = "federated"
)

// Credentials is what a consumer hands to the orchestrator to log in.
type Credentials struct {
	Kind       CredentialKind
	Identifier string
	Secret     string
}

// PasswordCredentials builds identifier/secret credentials for the local provider.
func PasswordCredentials(identifier, secret string) Credentials {
	return Credentials{Kind: CredentialPassword, Identifier: identifier, Secret: secret}
}

// FederatedCredentials signals that the federated transport already holds a
// completed token exchange.
func FederatedCredentials() Credentials {
	return Credentials{Kind: CredentialFederated}
}

// IdentifierDomain returns the lower-cased part after '@', or "".
func (c Credentials) IdentifierDomain() string {
	return email.Domain(c.Identifier)
}

// TwoFactorMethod is how a second-factor code reaches the user.
type TwoFactorMethod string

const (
	MethodEmail TwoFactorMethod = "email"
	MethodSMS   TwoFactorMethod = "sms"
	MethodTOTP  TwoFactorMethod = "totp"
)

func (m TwoFactorMethod) Valid() bool {
	return m == MethodEmail || m == MethodSMS || m == MethodTOTP
}

// OutOfBand reports whether codes are delivered to the user's contact.
func (m TwoFactorMethod) OutOfBand() bool {
	return m == MethodEmail || m == MethodSMS
}

// TwoFactorPolicy is the per-account step-up requirement.
type TwoFactorPolicy struct {
	Required    bool
	Method      TwoFactorMethod
	Contact     string
	BackupCodes bool
}

// Grant is the provider-neutral result of a successful primary
// authentication. It never leaves the orchestrator.
//
// StepUp is set when the provider withholds tokens until the second factor
// is verified. Tokens is then empty and is filled in by the verification.
type Grant struct {
	User      AuthUser
	Tokens    TokenSet
	StepUp    string
	Provider  Provider
	TwoFactor TwoFactorPolicy
}

// ChallengeView is the consumer-facing description of an issued challenge.
type ChallengeView struct {
	ID                string
	Method            TwoFactorMethod
	MaskedContact     string
	AttemptsRemaining int
	ExpiresAt         time.Time
}

// LoginOutcome tags LoginResult.
type LoginOutcome string

const (
	OutcomeSuccess           LoginOutcome = "success"
	OutcomeTwoFactorRequired LoginOutcome = "two_factor_required"
	OutcomeRejected          LoginOutcome = "rejected"
)

// LoginResult is exactly one of Success, TwoFactorRequired or Rejected.
type LoginResult struct {
	Outcome   LoginOutcome
	Session   *AuthSession
	Challenge *ChallengeView
	Reason    dErrors.Code
}

func Succeeded(s *AuthSession) LoginResult {
	return LoginResult{Outcome: OutcomeSuccess, Session: s}
}

func TwoFactorRequired(c ChallengeView) LoginResult {
	return LoginResult{Outcome: OutcomeTwoFactorRequired, Challenge: &c}
}

// TwoFactorRetry reports a wrong code on a challenge that still accepts
// attempts. Challenge carries the decremented count.
func TwoFactorRetry(c ChallengeView, reason dErrors.Code) LoginResult {
	r := TwoFactorRequired(c)
	r.Reason = reason
	return r
}

func Rejected(reason dErrors.Code) LoginResult {
	return LoginResult{Outcome: OutcomeRejected, Reason: reason}
}

// RejectedFrom maps an error to a rejection, keeping its code.
func RejectedFrom(err error) LoginResult {
	return Rejected(dErrors.CodeOf(err))
}

// MaskContact hides most of an e-mail address or phone number.
func MaskContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return ""
	}
	if local, domain, ok := strings.Cut(contact, "@"); ok {
		if len(local) <= 1 {
			return "*@" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
	}
	if len(contact) <= 4 {
		return strings.Repeat("*", len(contact))
	}
	return strings.Repeat("*", len(contact)-4) + contact[len(contact)-4:]
}
