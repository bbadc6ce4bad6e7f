package session

import (
	"context"

	"backoffice/internal/auth/local"
	"backoffice/internal/auth/models"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/audit"
)

// RequestPasswordReset asks the local provider to send a reset token. The
// result never reveals whether the identifier exists.
func (o *Orchestrator) RequestPasswordReset(ctx context.Context, identifier string) error {
	if o.accounts == nil {
		return dErrors.New(dErrors.CodeProviderUnavailable, "local account management is not configured")
	}
	if _, federated := o.federatedDomains[models.PasswordCredentials(identifier, "").IdentifierDomain()]; federated {
		return dErrors.New(dErrors.CodeUseFederatedLogin, "password is managed by the federated provider")
	}
	if err := o.accounts.RequestPasswordReset(ctx, identifier); err != nil {
		return err
	}
	o.audit(ctx, audit.EventPasswordResetRequested, "", string(models.ProviderLocal), "")
	return nil
}

func (o *Orchestrator) ResetPassword(ctx context.Context, token, newSecret string) error {
	if o.accounts == nil {
		return dErrors.New(dErrors.CodeProviderUnavailable, "local account management is not configured")
	}
	if err := o.accounts.ResetPassword(ctx, token, newSecret); err != nil {
		return err
	}
	o.audit(ctx, audit.EventPasswordResetCompleted, "", string(models.ProviderLocal), "")
	return nil
}

// SetupTwoFactor starts authenticator enrolment for the signed-in local user.
func (o *Orchestrator) SetupTwoFactor(ctx context.Context) (*local.TwoFactorSetup, error) {
	token, err := o.localAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return o.accounts.SetupTwoFactor(ctx, token)
}

// ConfirmTwoFactorSetup finishes enrolment and returns the one-time backup
// codes. They are not retrievable later.
func (o *Orchestrator) ConfirmTwoFactorSetup(ctx context.Context, code string) ([]string, error) {
	token, err := o.localAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	codes, err := o.accounts.VerifyTwoFactorSetup(ctx, token, code)
	if err != nil {
		return nil, err
	}
	if user, ok := o.CurrentUser(ctx); ok {
		o.audit(ctx, audit.EventTwoFactorEnabled, user.ID, string(models.ProviderLocal), "")
	}
	return codes, nil
}

func (o *Orchestrator) localAccessToken(ctx context.Context) (string, error) {
	if o.accounts == nil {
		return "", dErrors.New(dErrors.CodeProviderUnavailable, "local account management is not configured")
	}
	s, ok := o.store.Get(ctx)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "not signed in")
	}
	if s.Provider != models.ProviderLocal {
		return "", dErrors.New(dErrors.CodeUseFederatedLogin, "two-factor settings are managed by the federated provider")
	}
	token, ok := o.AccessToken(ctx)
	if !ok {
		return "", dErrors.New(dErrors.CodeTokenExpired, "session expired")
	}
	return token, nil
}
