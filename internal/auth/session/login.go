package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"backoffice/internal/auth/device"
	"backoffice/internal/auth/models"
	"backoffice/internal/auth/twofactor"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/audit"
	"backoffice/pkg/requestcontext"
)

// Login authenticates creds and either commits a session, issues a
// two-factor challenge or rejects. Provider network calls happen before the
// token store is touched.
func (o *Orchestrator) Login(ctx context.Context, creds models.Credentials) models.LoginResult {
	ctx, span := o.tracer.Start(ctx, "session.Login", trace.WithAttributes(
		attribute.String("credential_kind", string(creds.Kind)),
	))
	defer span.End()

	provider, reason := o.route(creds)
	if reason != "" {
		return o.finish(span, o.reject(ctx, providerName(provider), "", reason))
	}
	span.SetAttributes(attribute.String("provider", string(provider.Provider())))

	grant, err := provider.Authenticate(ctx, creds)
	if err != nil {
		return o.finish(span, o.rejectErr(ctx, string(provider.Provider()), "", err))
	}
	if !grant.TwoFactor.Required {
		return o.finish(span, o.commit(ctx, grant))
	}

	view, err := o.challenges.Issue(ctx, grant)
	if err != nil {
		return o.finish(span, o.rejectErr(ctx, string(grant.Provider), grant.User.ID, err))
	}
	o.metrics.ObserveTwoFactor(string(view.Method), "issued")
	o.audit(ctx, audit.EventTwoFactorChallengeIssued, grant.User.ID, string(grant.Provider), "")
	return o.finish(span, models.TwoFactorRequired(view))
}

// VerifyTwoFactor submits a code for a pending challenge. A wrong code that
// leaves attempts yields TwoFactorRequired with the reason set.
func (o *Orchestrator) VerifyTwoFactor(ctx context.Context, challengeID, code string) models.LoginResult {
	ctx, span := o.tracer.Start(ctx, "session.VerifyTwoFactor")
	defer span.End()
	res, err := o.challenges.Verify(ctx, challengeID, code)
	return o.finish(span, o.afterAttempt(ctx, res, err, "code"))
}

// VerifyBackupCode redeems a single-use backup code for a pending challenge.
func (o *Orchestrator) VerifyBackupCode(ctx context.Context, challengeID, code string) models.LoginResult {
	ctx, span := o.tracer.Start(ctx, "session.VerifyBackupCode")
	defer span.End()
	res, err := o.challenges.VerifyBackup(ctx, challengeID, code)
	return o.finish(span, o.afterAttempt(ctx, res, err, "backup_code"))
}

// AbandonTwoFactor discards a pending challenge and its grant.
func (o *Orchestrator) AbandonTwoFactor(ctx context.Context, challengeID string) error {
	if err := o.challenges.Abandon(ctx, challengeID); err != nil {
		return err
	}
	o.metrics.ObserveTwoFactor("", string(twofactor.StateAbandoned))
	o.audit(ctx, audit.EventTwoFactorAbandoned, "", "", "cancelled")
	return nil
}

func (o *Orchestrator) afterAttempt(ctx context.Context, res twofactor.Result, err error, kind string) models.LoginResult {
	method := string(res.View.Method)
	switch {
	case err == nil && res.State == twofactor.StateVerified && res.Grant != nil:
		o.metrics.ObserveTwoFactor(method, string(twofactor.StateVerified))
		o.audit(ctx, audit.EventTwoFactorVerified, res.Grant.User.ID, string(res.Grant.Provider), kind)
		return o.commit(ctx, res.Grant)
	case err == nil:
		return o.reject(ctx, "", "", dErrors.CodeInvariantViolation)
	}

	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeTwoFactorMismatch, dErrors.CodeProviderUnavailable:
		if res.State == twofactor.StateChallengeIssued {
			o.metrics.ObserveTwoFactor(method, string(code))
			o.audit(ctx, audit.EventTwoFactorFailed, "", "", string(code))
			return models.TwoFactorRetry(res.View, code)
		}
	case dErrors.CodeTwoFactorExhausted, dErrors.CodeAccountLocked:
		o.metrics.ObserveTwoFactor(method, string(twofactor.StateExhausted))
		o.audit(ctx, audit.EventTwoFactorExhausted, "", "", string(code))
	case dErrors.CodeTwoFactorAbandoned:
		o.metrics.ObserveTwoFactor(method, string(twofactor.StateAbandoned))
		o.audit(ctx, audit.EventTwoFactorAbandoned, "", "", string(code))
	}
	return o.reject(ctx, "", "", code)
}

// route picks the provider for creds, or a rejection reason.
func (o *Orchestrator) route(creds models.Credentials) (IdentityProvider, dErrors.Code) {
	switch creds.Kind {
	case models.CredentialFederated:
		p, ok := o.providers[models.ProviderFederated]
		if !ok {
			return nil, dErrors.CodeProviderUnavailable
		}
		return p, ""
	case models.CredentialPassword:
		if _, federated := o.federatedDomains[creds.IdentifierDomain()]; federated {
			return nil, dErrors.CodeUseFederatedLogin
		}
		return o.providers[models.ProviderLocal], ""
	default:
		return nil, dErrors.CodeBadRequest
	}
}

// commit is the only place a session becomes visible.
func (o *Orchestrator) commit(ctx context.Context, grant *models.Grant) models.LoginResult {
	session, err := models.NewSession(grant.User, grant.Tokens, grant.Provider, requestcontext.Now(ctx))
	if err != nil {
		o.logger.ErrorContext(ctx, "provider grant does not form a valid session",
			"provider", grant.Provider,
			"error", err,
		)
		return o.reject(ctx, string(grant.Provider), grant.User.ID, dErrors.CodeProviderUnavailable)
	}
	if err := o.store.Set(ctx, session); err != nil {
		o.logger.ErrorContext(ctx, "failed to commit session", "provider", grant.Provider, "error", err)
		return o.rejectErr(ctx, string(grant.Provider), grant.User.ID, err)
	}

	o.metrics.ObserveLogin(string(grant.Provider), string(models.OutcomeSuccess), "")
	o.audit(ctx, audit.EventLoginSucceeded, session.User.ID, string(session.Provider), "")
	return models.Succeeded(session.Clone())
}

func (o *Orchestrator) rejectErr(ctx context.Context, provider, userID string, err error) models.LoginResult {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		o.logger.ErrorContext(ctx, "login failed", "provider", provider, "error", err)
	}
	return o.reject(ctx, provider, userID, code)
}

func (o *Orchestrator) reject(ctx context.Context, provider, userID string, reason dErrors.Code) models.LoginResult {
	o.metrics.ObserveLogin(provider, string(models.OutcomeRejected), string(reason))
	o.audit(ctx, audit.EventLoginRejected, userID, provider, string(reason))
	return models.Rejected(reason)
}

func (o *Orchestrator) finish(span trace.Span, res models.LoginResult) models.LoginResult {
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	if res.Reason != "" {
		span.SetAttributes(attribute.String("reason", string(res.Reason)))
	}
	if res.Outcome == models.OutcomeRejected {
		span.SetStatus(codes.Error, string(res.Reason))
	}
	return res
}

func (o *Orchestrator) audit(ctx context.Context, event audit.AuditEvent, userID, provider, reason string) {
	audit.Log(ctx, o.logger, o.auditor, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    string(event),
		UserID:    userID,
		Provider:  provider,
		Reason:    reason,
		Device:    device.Label(ctx),
	})
}

func providerName(p IdentityProvider) string {
	if p == nil {
		return ""
	}
	return string(p.Provider())
}
