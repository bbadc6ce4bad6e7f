// Package session is the single entry point consumers use to log in, query
// and end the authenticated session. It routes credentials to a provider,
// drives the two-factor step-up and commits sessions to the token store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"backoffice/internal/auth/local"
	"backoffice/internal/auth/models"
	"backoffice/internal/auth/tokenstore"
	"backoffice/internal/auth/twofactor"
	"backoffice/pkg/platform/audit"
)

const (
	DefaultRefreshWindow = 2 * time.Minute
	DefaultLogoutTimeout = 5 * time.Second
)

// IdentityProvider turns credentials into a grant and refreshes the tokens
// it issued.
type IdentityProvider interface {
	Provider() models.Provider
	Authenticate(ctx context.Context, creds models.Credentials) (*models.Grant, error)
	Refresh(ctx context.Context, tokens models.TokenSet) (models.TokenSet, error)
}

// ProviderLogout ends the provider-side session.
type ProviderLogout interface {
	Logout(ctx context.Context, tokens models.TokenSet) error
}

// AccountManager is the local provider's self-service surface.
type AccountManager interface {
	RequestPasswordReset(ctx context.Context, identifier string) error
	ResetPassword(ctx context.Context, token, newSecret string) error
	SetupTwoFactor(ctx context.Context, accessToken string) (*local.TwoFactorSetup, error)
	VerifyTwoFactorSetup(ctx context.Context, accessToken, code string) ([]string, error)
}

type Challenges interface {
	Issue(ctx context.Context, grant *models.Grant) (models.ChallengeView, error)
	Verify(ctx context.Context, id, code string) (twofactor.Result, error)
	VerifyBackup(ctx context.Context, id, code string) (twofactor.Result, error)
	Abandon(ctx context.Context, id string) error
}

type SessionStore interface {
	Get(ctx context.Context) (*models.AuthSession, bool)
	Snapshot() *models.AuthSession
	Set(ctx context.Context, session *models.AuthSession) error
	Replace(ctx context.Context, prev, next *models.AuthSession) error
	Clear(ctx context.Context) error
	Discard(ctx context.Context, prev *models.AuthSession, cause string)
	RestoreWithStatus(ctx context.Context) (*models.AuthSession, tokenstore.RestoreStatus)
	ExpiresAt(session *models.AuthSession) time.Time
}

type Metrics interface {
	ObserveLogin(provider, outcome, reason string)
	ObserveTwoFactor(method, outcome string)
	IncrementFederatedLogoutFailure()
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, string, string) {}
func (noopMetrics) ObserveTwoFactor(string, string)     {}
func (noopMetrics) IncrementFederatedLogoutFailure()    {}

type Orchestrator struct {
	providers        map[models.Provider]IdentityProvider
	federatedLogout  ProviderLogout
	accounts         AccountManager
	store            SessionStore
	challenges       Challenges
	federatedDomains map[string]struct{}
	refreshWindow    time.Duration
	logoutTimeout    time.Duration
	refreshes        singleflight.Group
	background       sync.WaitGroup
	logger           *slog.Logger
	metrics          Metrics
	auditor          audit.Emitter
	tracer           trace.Tracer
}

type Option func(*Orchestrator)

// WithFederated registers the federated provider. Providers that can end
// their own session are also used for logout.
func WithFederated(p IdentityProvider) Option {
	return func(o *Orchestrator) {
		if p == nil {
			return
		}
		o.providers[models.ProviderFederated] = p
		if l, ok := p.(ProviderLogout); ok {
			o.federatedLogout = l
		}
	}
}

func WithAccountManager(m AccountManager) Option {
	return func(o *Orchestrator) {
		o.accounts = m
	}
}

// WithFederatedDomains lists identifier domains that must sign in through
// the federated provider.
func WithFederatedDomains(domains ...string) Option {
	return func(o *Orchestrator) {
		for _, d := range domains {
			if d != "" {
				o.federatedDomains[d] = struct{}{}
			}
		}
	}
}

func WithRefreshWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.refreshWindow = d
		}
	}
}

func WithLogoutTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.logoutTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(o *Orchestrator) {
		o.auditor = e
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

func New(localProvider IdentityProvider, store SessionStore, challenges Challenges, opts ...Option) (*Orchestrator, error) {
	if localProvider == nil {
		return nil, errors.New("local provider is required")
	}
	if store == nil || challenges == nil {
		return nil, errors.New("token store and challenge registry are required")
	}
	o := &Orchestrator{
		providers:        map[models.Provider]IdentityProvider{models.ProviderLocal: localProvider},
		store:            store,
		challenges:       challenges,
		federatedDomains: make(map[string]struct{}),
		refreshWindow:    DefaultRefreshWindow,
		logoutTimeout:    DefaultLogoutTimeout,
		logger:           slog.Default(),
		metrics:          noopMetrics{},
		tracer:           otel.Tracer("backoffice/internal/auth/session"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}
