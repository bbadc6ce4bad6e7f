// Package local authenticates internally-managed accounts against the
// credential backend and turns its responses into provider-neutral grants.
package local

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/asaskevich/govalidator"

	"backoffice/internal/auth/models"
	"backoffice/internal/auth/rolemap"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/secrets"
)

// UnmappedRoleRecorder counts role strings that fell back to the default.
type UnmappedRoleRecorder interface {
	IncrementUnmappedRole(source string)
}

// TwoFactorSetup is what a user needs to enrol an authenticator app.
type TwoFactorSetup struct {
	QRPayload    string
	SharedSecret string
}

type Service struct {
	backend Backend
	roles   *rolemap.Normalizer
	logger  *slog.Logger
	metrics UnmappedRoleRecorder
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRoleMapping(n *rolemap.Normalizer) Option {
	return func(s *Service) {
		if n != nil {
			s.roles = n
		}
	}
}

func WithMetrics(m UnmappedRoleRecorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(backend Backend, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, errors.New("credential backend is required")
	}
	s := &Service{
		backend: backend,
		roles:   rolemap.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Provider identifies the grants this service produces.
func (s *Service) Provider() models.Provider {
	return models.ProviderLocal
}

// Login verifies identifier and secret with the backend and builds the grant.
func (s *Service) Login(ctx context.Context, identifier, secret string) (*models.Grant, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if !govalidator.IsEmail(identifier) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identifier must be an email address")
	}
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
	}

	resp, err := s.backend.Login(ctx, LoginRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return nil, s.translate(ctx, err, "login")
	}
	return s.grantFrom(ctx, resp)
}

// Authenticate routes password credentials to Login.
func (s *Service) Authenticate(ctx context.Context, creds models.Credentials) (*models.Grant, error) {
	if creds.Kind != models.CredentialPassword {
		return nil, dErrors.New(dErrors.CodeBadRequest, "local provider requires password credentials")
	}
	return s.Login(ctx, creds.Identifier, creds.Secret)
}

func (s *Service) grantFrom(ctx context.Context, resp *LoginResponse) (*models.Grant, error) {
	p := resp.Profile
	role, mapped := s.roles.Lookup(p.Role, models.ProviderLocal)
	if !mapped {
		s.logger.WarnContext(ctx, "unmapped local role, using default", "raw_role", p.Role, "role", role)
		if s.metrics != nil {
			s.metrics.IncrementUnmappedRole(string(models.ProviderLocal))
		}
	}
	user, err := models.NewAuthUser(models.UserInput{
		ID:             p.ID,
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
		Role:           role,
		AccountKind:    models.AccountKind(p.AccountKind),
		OrganizationID: p.OrganizationID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "credential backend returned an invalid profile", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "credential backend returned an invalid profile")
	}

	policy := models.TwoFactorPolicy{
		Required:    resp.TwoFactor.Enabled,
		Method:      models.TwoFactorMethod(resp.TwoFactor.Method),
		Contact:     resp.TwoFactor.Contact,
		BackupCodes: resp.TwoFactor.BackupCodes,
	}
	grant := &models.Grant{
		User:      user,
		Provider:  models.ProviderLocal,
		TwoFactor: policy,
	}
	if policy.Required {
		if !policy.Method.Valid() {
			return nil, dErrors.New(dErrors.CodeProviderUnavailable, "credential backend returned an unknown two-factor method")
		}
		if resp.StepUp == nil || resp.StepUp.Token == "" {
			return nil, dErrors.New(dErrors.CodeProviderUnavailable, "credential backend returned no step-up handle")
		}
		grant.StepUp = resp.StepUp.Token
		return grant, nil
	}

	if resp.Tokens.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeProviderUnavailable, "credential backend returned no access token")
	}
	grant.Tokens = tokenSet(resp.Tokens)
	return grant, nil
}

// Refresh exchanges the refresh token for a new token set.
func (s *Service) Refresh(ctx context.Context, tokens models.TokenSet) (models.TokenSet, error) {
	if tokens.RefreshToken == "" {
		return models.TokenSet{}, dErrors.New(dErrors.CodeTokenExpired, "session has no refresh token")
	}
	bundle, err := s.backend.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return models.TokenSet{}, s.translate(ctx, err, "refresh")
	}
	refreshed := tokenSet(*bundle)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	if refreshed.IDToken == "" {
		refreshed.IDToken = tokens.IDToken
	}
	return refreshed, nil
}

// RequestPasswordReset never reveals whether identifier exists. Failures are
// logged and swallowed.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if !govalidator.IsEmail(identifier) {
		return nil
	}
	if err := s.backend.RequestPasswordReset(ctx, identifier); err != nil {
		s.logger.WarnContext(ctx, "password reset request failed", "error", err)
	}
	return nil
}

// ResetPassword sets a new secret using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newSecret string) error {
	if strings.TrimSpace(token) == "" {
		return dErrors.New(dErrors.CodeInvalidResetToken, "reset token is invalid or expired")
	}
	if err := secrets.CheckStrength(newSecret); err != nil {
		return err
	}
	if err := s.backend.ResetPassword(ctx, token, newSecret); err != nil {
		return s.translate(ctx, err, "reset password")
	}
	return nil
}

// SetupTwoFactor starts authenticator enrolment for the account holding accessToken.
func (s *Service) SetupTwoFactor(ctx context.Context, accessToken string) (*TwoFactorSetup, error) {
	enrollment, err := s.backend.BeginTOTPEnrollment(ctx, accessToken)
	if err != nil {
		return nil, s.translate(ctx, err, "begin two-factor setup")
	}
	return &TwoFactorSetup{QRPayload: enrollment.URI, SharedSecret: enrollment.Secret}, nil
}

// VerifyTwoFactorSetup confirms enrolment with a first code and returns the
// account's new backup codes.
func (s *Service) VerifyTwoFactorSetup(ctx context.Context, accessToken, code string) ([]string, error) {
	codes, err := s.backend.ConfirmTOTPEnrollment(ctx, accessToken, strings.TrimSpace(code))
	if err != nil {
		return nil, s.translate(ctx, err, "confirm two-factor setup")
	}
	return codes, nil
}

// CompleteStepUp verifies the second factor for a step-up handle and returns
// the session tokens the backend withheld at login.
func (s *Service) CompleteStepUp(ctx context.Context, stepUp, code string) (models.TokenSet, error) {
	bundle, err := s.backend.VerifyStepUp(ctx, stepUp, strings.TrimSpace(code))
	if err != nil {
		return models.TokenSet{}, s.translate(ctx, err, "verify step-up")
	}
	return stepUpTokens(bundle)
}

// RedeemBackupCode completes a step-up with a single-use backup code.
func (s *Service) RedeemBackupCode(ctx context.Context, stepUp, code string) (models.TokenSet, error) {
	bundle, err := s.backend.RedeemBackupCode(ctx, stepUp, secrets.NormalizeBackupCode(code))
	if err != nil {
		return models.TokenSet{}, s.translate(ctx, err, "redeem backup code")
	}
	return stepUpTokens(bundle)
}

func stepUpTokens(bundle *TokenBundle) (models.TokenSet, error) {
	if bundle == nil || bundle.AccessToken == "" {
		return models.TokenSet{}, dErrors.New(dErrors.CodeProviderUnavailable, "credential backend returned no access token")
	}
	return tokenSet(*bundle), nil
}

// translate keeps coded rejections and maps everything else to
// provider_unavailable so callers never see transport details.
func (s *Service) translate(ctx context.Context, err error, op string) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) && domainErr.Code != dErrors.CodeInternal {
		return err
	}
	s.logger.WarnContext(ctx, "credential backend unavailable", "op", op, "error", err)
	return dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "credential backend unavailable")
}

func tokenSet(b TokenBundle) models.TokenSet {
	return models.TokenSet{
		AccessToken:  b.AccessToken,
		IDToken:      b.IDToken,
		RefreshToken: b.RefreshToken,
		ExpiresAt:    b.ExpiresAt.UTC(),
	}
}
