package twofactor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"backoffice/internal/auth/models"
	"backoffice/internal/notify"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/secrets"
	"backoffice/pkg/requestcontext"
)

type pending struct {
	challenge *Challenge
	grant     *models.Grant
}

// Registry holds pending logins between primary authentication and challenge
// completion. Entries live in memory only; a restart discards them.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*pending

	ttl         time.Duration
	maxAttempts int
	notifier    notify.Notifier
	stepUp      StepUpCompleter
	logger      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(r *Registry) {
		r.notifier = n
	}
}

// WithStepUp sets the completer for grants that carry a provider step-up
// handle instead of tokens.
func WithStepUp(c StepUpCompleter) Option {
	return func(r *Registry) {
		r.stepUp = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		pending:     make(map[string]*pending),
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result describes the challenge after a verification step. Grant is set
// only when State is StateVerified; for step-up grants it carries the tokens
// the provider released.
type Result struct {
	State State
	View  models.ChallengeView
	Grant *models.Grant
}

// Issue creates a challenge for grant and, for out-of-band methods, delivers
// a fresh code. The grant is held until the challenge is verified.
func (r *Registry) Issue(ctx context.Context, grant *models.Grant) (models.ChallengeView, error) {
	policy := grant.TwoFactor
	if !policy.Required {
		return models.ChallengeView{}, dErrors.New(dErrors.CodeInvariantViolation, "two-factor is not required for this account")
	}
	now := requestcontext.Now(ctx)

	var verifier, backup Verifier
	switch {
	case grant.StepUp != "":
		if r.stepUp == nil {
			return models.ChallengeView{}, dErrors.New(dErrors.CodeInternal, "no step-up completer configured")
		}
		if !policy.Method.OutOfBand() && policy.Method != models.MethodTOTP {
			return models.ChallengeView{}, dErrors.New(dErrors.CodeInvalidInput, "unsupported two-factor method")
		}
		verifier = stepUpVerifier{completer: r.stepUp, handle: grant.StepUp}
		if policy.BackupCodes {
			backup = stepUpVerifier{completer: r.stepUp, handle: grant.StepUp, backup: true}
		}
	case policy.Method.OutOfBand():
		v, err := r.deliverCode(ctx, policy)
		if err != nil {
			return models.ChallengeView{}, err
		}
		verifier = v
	case policy.Method == models.MethodTOTP:
		return models.ChallengeView{}, dErrors.New(dErrors.CodeInvalidInput, "authenticator codes require a provider step-up")
	default:
		return models.ChallengeView{}, dErrors.New(dErrors.CodeInvalidInput, "unsupported two-factor method")
	}

	c := NewChallenge(uuid.NewString(), policy.Method, policy.Contact, now, r.ttl, r.maxAttempts, verifier, backup)

	r.mu.Lock()
	r.pruneLocked(now)
	r.pending[c.ID] = &pending{challenge: c, grant: grant}
	r.mu.Unlock()

	return c.View(), nil
}

func (r *Registry) deliverCode(ctx context.Context, policy models.TwoFactorPolicy) (Verifier, error) {
	if r.notifier == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no notifier configured for out-of-band codes")
	}
	if policy.Contact == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account has no two-factor contact")
	}
	code, err := secrets.NumericCode(CodeLength)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate code")
	}
	channel := notify.ChannelEmail
	if policy.Method == models.MethodSMS {
		channel = notify.ChannelSMS
	}
	msg := notify.Message{
		Channel:  channel,
		To:       policy.Contact,
		Template: notify.TemplateTwoFactorCode,
		Params:   map[string]string{"code": code},
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		r.logger.WarnContext(ctx, "failed to deliver two-factor code", "method", policy.Method, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "could not deliver code")
	}
	return digestVerifier{digest: secrets.Digest(code)}, nil
}

// Verify submits a code for the challenge's primary method.
func (r *Registry) Verify(ctx context.Context, id, code string) (Result, error) {
	return r.attempt(ctx, id, func(c *Challenge, now time.Time) (State, error) {
		return c.Attempt(ctx, code, now)
	})
}

// VerifyBackup redeems a backup code against the challenge.
func (r *Registry) VerifyBackup(ctx context.Context, id, code string) (Result, error) {
	return r.attempt(ctx, id, func(c *Challenge, now time.Time) (State, error) {
		return c.AttemptBackup(ctx, code, now)
	})
}

// Abandon cancels a pending login.
func (r *Registry) Abandon(_ context.Context, id string) error {
	p, ok := r.lookup(id)
	if !ok {
		return dErrors.New(dErrors.CodeChallengeNotFound, "challenge not found")
	}
	p.challenge.Abandon()
	r.remove(id, p)
	return nil
}

// Pending returns the view of an open challenge.
func (r *Registry) Pending(id string) (models.ChallengeView, bool) {
	p, ok := r.lookup(id)
	if !ok {
		return models.ChallengeView{}, false
	}
	return p.challenge.View(), true
}

// Len returns the number of tracked challenges.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) attempt(ctx context.Context, id string, fn func(*Challenge, time.Time) (State, error)) (Result, error) {
	p, ok := r.lookup(id)
	if !ok {
		return Result{}, dErrors.New(dErrors.CodeChallengeNotFound, "challenge not found")
	}
	state, err := fn(p.challenge, requestcontext.Now(ctx))
	res := Result{State: state, View: p.challenge.View()}
	if state.Terminal() {
		r.remove(id, p)
	}
	if state == StateVerified && err == nil {
		grant := *p.grant
		if tokens := p.challenge.ReleasedTokens(); tokens != nil {
			grant.Tokens = *tokens
			grant.StepUp = ""
		}
		res.Grant = &grant
	}
	return res, err
}

func (r *Registry) lookup(id string) (*pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p, ok
}

func (r *Registry) remove(id string, p *pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[id] == p {
		delete(r.pending, id)
	}
}

// pruneLocked drops expired and finished entries. It runs on Issue only.
func (r *Registry) pruneLocked(now time.Time) {
	for id, p := range r.pending {
		if !now.Before(p.challenge.ExpiresAt) || p.challenge.State().Terminal() {
			delete(r.pending, id)
		}
	}
}
