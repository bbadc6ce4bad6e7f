package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"backoffice/internal/auth/models"
	"backoffice/internal/auth/tokenstore"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/audit"
	"backoffice/pkg/requestcontext"
)

// IsAuthenticated reports whether a live session exists. Expired sessions
// are evicted by the read.
func (o *Orchestrator) IsAuthenticated(ctx context.Context) bool {
	_, ok := o.store.Get(ctx)
	return ok
}

func (o *Orchestrator) CurrentUser(ctx context.Context) (models.AuthUser, bool) {
	s, ok := o.store.Get(ctx)
	if !ok {
		return models.AuthUser{}, false
	}
	return s.User, true
}

// Logout clears the local session first; the caller is unauthenticated when
// it returns, whatever happens upstream. A federated session is then ended
// at the provider in the background. Only a failure to erase the persisted
// copy is returned.
func (o *Orchestrator) Logout(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "session.Logout")
	defer span.End()

	prev := o.store.Snapshot()
	err := o.store.Clear(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "persisted session could not be deleted", "error", err)
		span.RecordError(err)
	}
	if prev == nil {
		return err
	}

	span.SetAttributes(attribute.String("provider", string(prev.Provider)))
	o.audit(ctx, audit.EventLoggedOut, prev.User.ID, string(prev.Provider), "")
	if prev.Provider == models.ProviderFederated && o.federatedLogout != nil {
		o.endProviderSession(ctx, prev)
	}
	return err
}

func (o *Orchestrator) endProviderSession(ctx context.Context, prev *models.AuthSession) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.logoutTimeout)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer cancel()
		if err := o.federatedLogout.Logout(bg, prev.Tokens); err != nil {
			o.logger.WarnContext(bg, "federated logout failed", "user_id", prev.User.ID, "error", err)
			o.metrics.IncrementFederatedLogoutFailure()
			o.audit(bg, audit.EventFederatedLogoutFailed, prev.User.ID, string(prev.Provider), string(dErrors.CodeOf(err)))
		}
	}()
}

// Wait blocks until background provider logouts have finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// RestoreOnStartup loads the persisted session, if any. It makes no network
// calls; expired or corrupt data is discarded.
func (o *Orchestrator) RestoreOnStartup(ctx context.Context) bool {
	ctx, span := o.tracer.Start(ctx, "session.RestoreOnStartup")
	defer span.End()

	s, status := o.store.RestoreWithStatus(ctx)
	span.SetAttributes(attribute.String("status", string(status)))
	switch status {
	case tokenstore.RestoreRestored:
		o.audit(ctx, audit.EventSessionRestored, s.User.ID, string(s.Provider), "")
		return true
	case tokenstore.RestoreExpired:
		o.audit(ctx, audit.EventSessionExpired, "", "", "expired_on_restore")
	case tokenstore.RestoreCorrupt:
		o.audit(ctx, audit.EventSessionCorrupt, "", "", string(dErrors.CodeCorruptPersistedSession))
	case tokenstore.RestoreUnavailable:
		o.logger.WarnContext(ctx, "persisted session store unavailable at startup")
	}
	return false
}

// AccessToken returns the current access token, refreshing it first when it
// is inside the refresh window. A failed refresh ends the session.
func (o *Orchestrator) AccessToken(ctx context.Context) (string, bool) {
	s, ok := o.store.Get(ctx)
	if !ok {
		return "", false
	}
	if !o.dueForRefresh(ctx, s) {
		return s.Tokens.AccessToken, true
	}
	if err := o.Refresh(ctx); err != nil {
		return "", false
	}
	s, ok = o.store.Get(ctx)
	if !ok {
		return "", false
	}
	return s.Tokens.AccessToken, true
}

func (o *Orchestrator) dueForRefresh(ctx context.Context, s *models.AuthSession) bool {
	if s.Tokens.RefreshToken == "" {
		return false
	}
	return o.store.ExpiresAt(s).Sub(requestcontext.Now(ctx)) <= o.refreshWindow
}

// Refresh renews the session's tokens with its provider. Concurrent calls
// share one round trip. Any failure clears the session and a full login is
// required.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "session.Refresh")
	defer span.End()

	s, ok := o.store.Get(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeTokenExpired, "no active session")
	}
	_, err, _ := o.refreshes.Do(s.Tokens.AccessToken, func() (any, error) {
		return nil, o.refresh(ctx, s)
	})
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return err
}

func (o *Orchestrator) refresh(ctx context.Context, s *models.AuthSession) error {
	provider, ok := o.providers[s.Provider]
	if !ok {
		return o.endAfterRefreshFailure(ctx, s, dErrors.New(dErrors.CodeProviderUnavailable, "session provider is not configured"))
	}
	tokens, err := provider.Refresh(ctx, s.Tokens)
	if err != nil {
		return o.endAfterRefreshFailure(ctx, s, err)
	}

	next := s.Clone()
	next.Tokens = tokens
	if err := o.store.Replace(ctx, s, next); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			o.logger.InfoContext(ctx, "session changed during refresh, discarding refreshed tokens")
			return dErrors.New(dErrors.CodeTokenExpired, "session ended during refresh")
		}
		return err
	}
	o.audit(ctx, audit.EventSessionRefreshed, s.User.ID, string(s.Provider), "")
	return nil
}

func (o *Orchestrator) endAfterRefreshFailure(ctx context.Context, s *models.AuthSession, err error) error {
	o.logger.WarnContext(ctx, "refresh failed, ending session",
		"provider", s.Provider,
		"code", dErrors.CodeOf(err),
	)
	o.store.Discard(ctx, s, "refresh_failed")
	o.audit(ctx, audit.EventSessionExpired, s.User.ID, string(s.Provider), string(dErrors.CodeOf(err)))
	return err
}

// ExpiresAt reports when the current session stops being valid.
func (o *Orchestrator) ExpiresAt(ctx context.Context) (time.Time, bool) {
	s, ok := o.store.Get(ctx)
	if !ok {
		return time.Time{}, false
	}
	return o.store.ExpiresAt(s), true
}
