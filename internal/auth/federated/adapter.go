// Package federated turns a completed exchange with the external identity
// provider into provider-neutral grants, and wraps its refresh and logout.
package federated

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"backoffice/internal/auth/models"
	"backoffice/internal/auth/rolemap"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/email"
	"backoffice/pkg/platform/circuit"
	"backoffice/pkg/requestcontext"
)

const (
	DefaultRoleClaim     = "roles"
	DefaultOrgClaim      = "org_id"
	DefaultLogoutTimeout = 5 * time.Second
)

// PolicyLookup supplies the two-factor policy of a federated account.
type PolicyLookup interface {
	TwoFactorPolicy(ctx context.Context, user models.AuthUser) (models.TwoFactorPolicy, error)
}

// UnmappedRoleRecorder counts role claims that fell back to the default.
type UnmappedRoleRecorder interface {
	IncrementUnmappedRole(source string)
}

// discarder is implemented by transports that can drop an exchange nobody
// collected.
type discarder interface {
	Discard()
}

type Adapter struct {
	transport     Transport
	roles         *rolemap.Normalizer
	roleClaim     string
	orgClaim      string
	policies      PolicyLookup
	breaker       *circuit.Breaker
	logoutTimeout time.Duration
	refreshes     singleflight.Group
	logger        *slog.Logger
	metrics       UnmappedRoleRecorder
}

type Option func(*Adapter)

func WithRoleMapping(n *rolemap.Normalizer) Option {
	return func(a *Adapter) {
		if n != nil {
			a.roles = n
		}
	}
}

func WithRoleClaim(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.roleClaim = name
		}
	}
}

func WithOrgClaim(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.orgClaim = name
		}
	}
}

func WithPolicyLookup(p PolicyLookup) Option {
	return func(a *Adapter) {
		a.policies = p
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(a *Adapter) {
		if b != nil {
			a.breaker = b
		}
	}
}

func WithLogoutTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.logoutTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m UnmappedRoleRecorder) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

func New(transport Transport, opts ...Option) (*Adapter, error) {
	if transport == nil {
		return nil, errors.New("federated transport is required")
	}
	a := &Adapter{
		transport:     transport,
		roles:         rolemap.Default(),
		roleClaim:     DefaultRoleClaim,
		orgClaim:      DefaultOrgClaim,
		breaker:       circuit.New("federated-logout"),
		logoutTimeout: DefaultLogoutTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderFederated
}

// Authenticate collects the completed exchange from the transport and builds
// the grant. The exchange is consumed even when the grant is refused.
func (a *Adapter) Authenticate(ctx context.Context, creds models.Credentials) (*models.Grant, error) {
	if creds.Kind != models.CredentialFederated {
		return nil, dErrors.New(dErrors.CodeBadRequest, "federated provider requires federated credentials")
	}
	token, claims, err := a.transport.Exchange(ctx)
	if err != nil {
		return nil, a.unavailable(ctx, err, "exchange")
	}

	session, err := a.ExchangeForSession(ctx, token, claims)
	if err != nil {
		return nil, err
	}

	var policy models.TwoFactorPolicy
	if a.policies != nil {
		policy, err = a.policies.TwoFactorPolicy(ctx, session.User)
		if err != nil {
			return nil, a.unavailable(ctx, err, "two-factor policy")
		}
		if policy.Required && !policy.Method.Valid() {
			return nil, dErrors.New(dErrors.CodeProviderUnavailable, "unknown two-factor method for federated account")
		}
	}

	return &models.Grant{
		User:      session.User,
		Tokens:    session.Tokens,
		Provider:  models.ProviderFederated,
		TwoFactor: policy,
	}, nil
}

// ExchangeForSession maps claims onto a session. The same token and claims
// always yield the same user and provider; only CreatedAt varies.
func (a *Adapter) ExchangeForSession(ctx context.Context, token ProviderToken, claims Claims) (*models.AuthSession, error) {
	subject := claims.String("sub")
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "federated identity has no subject")
	}
	if token.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeProviderUnavailable, "federated provider returned no access token")
	}

	user, err := models.NewAuthUser(a.userInput(ctx, subject, claims))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "federated provider returned invalid claims")
	}
	return models.NewSession(user, tokenSet(token), models.ProviderFederated, requestcontext.Now(ctx))
}

func (a *Adapter) userInput(ctx context.Context, subject string, claims Claims) models.UserInput {
	addr := claims.String("email")
	name := claims.String("name")
	if name == "" && addr != "" {
		name = email.DisplayNameFromEmail(addr)
	}

	raws := claims.Strings(a.roleClaim)
	role := a.roles.NormalizeAll(raws, models.ProviderFederated)
	if len(raws) > 0 && !a.anyMapped(raws) {
		a.logger.WarnContext(ctx, "unmapped federated roles, using default",
			"raw_roles", raws,
			"role", role,
		)
		if a.metrics != nil {
			a.metrics.IncrementUnmappedRole(string(models.ProviderFederated))
		}
	}

	in := models.UserInput{
		ID:          subject,
		Email:       addr,
		DisplayName: name,
		AvatarURL:   claims.String("picture"),
		Role:        role,
		AccountKind: models.AccountInternal,
	}
	if org := claims.String(a.orgClaim); org != "" {
		in.AccountKind = models.AccountExternal
		in.OrganizationID = org
	}
	return in
}

func (a *Adapter) anyMapped(raws []string) bool {
	for _, raw := range raws {
		if _, ok := a.roles.Lookup(raw, models.ProviderFederated); ok {
			return true
		}
	}
	return false
}

// Refresh exchanges the refresh token. Concurrent calls for the same token
// share one round trip.
func (a *Adapter) Refresh(ctx context.Context, tokens models.TokenSet) (models.TokenSet, error) {
	if tokens.RefreshToken == "" {
		return models.TokenSet{}, dErrors.New(dErrors.CodeTokenExpired, "session has no refresh token")
	}
	v, err, _ := a.refreshes.Do(tokens.RefreshToken, func() (any, error) {
		return a.transport.RefreshToken(ctx, tokens.RefreshToken)
	})
	if err != nil {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) && domainErr.Code != dErrors.CodeInternal {
			return models.TokenSet{}, err
		}
		return models.TokenSet{}, a.unavailable(ctx, err, "refresh")
	}

	refreshed := tokenSet(v.(ProviderToken))
	if refreshed.AccessToken == "" {
		return models.TokenSet{}, dErrors.New(dErrors.CodeProviderUnavailable, "federated provider returned no access token")
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	if refreshed.IDToken == "" {
		refreshed.IDToken = tokens.IDToken
	}
	return refreshed, nil
}

// Logout ends the provider-side session within the logout timeout. An open
// breaker fails fast without calling the provider.
func (a *Adapter) Logout(ctx context.Context, tokens models.TokenSet) error {
	if d, ok := a.transport.(discarder); ok {
		d.Discard()
	}
	if !a.breaker.Allow() {
		return dErrors.New(dErrors.CodeProviderUnavailable, "federated logout circuit is open")
	}

	ctx, cancel := context.WithTimeout(ctx, a.logoutTimeout)
	defer cancel()

	if err := a.transport.TriggerLogout(ctx, tokens.IDToken); err != nil {
		if _, change := a.breaker.RecordFailure(); change.Opened {
			a.logger.WarnContext(ctx, "federated logout circuit opened", "breaker", a.breaker.Name())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "federated logout timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "federated logout failed")
	}
	if _, change := a.breaker.RecordSuccess(); change.Closed {
		a.logger.InfoContext(ctx, "federated logout circuit closed", "breaker", a.breaker.Name())
	}
	return nil
}

func (a *Adapter) unavailable(ctx context.Context, err error, op string) error {
	a.logger.WarnContext(ctx, "federated provider unavailable", "op", op, "error", err)
	return dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "federated provider unavailable")
}

func tokenSet(t ProviderToken) models.TokenSet {
	return models.TokenSet{
		AccessToken:  t.AccessToken,
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt.UTC().Truncate(time.Second),
	}
}
