// Package twofactor implements the step-up challenge that gates session
// finalization after primary credentials are accepted.
package twofactor

import (
	"context"
	"sync"
	"time"

	"backoffice/internal/auth/models"
	dErrors "backoffice/pkg/domain-errors"
)

// State is the lifecycle position of a challenge.
type State string

const (
	StateNotRequired     State = "not_required"
	StateChallengeIssued State = "challenge_issued"
	StateVerified        State = "verified"
	StateAbandoned       State = "abandoned"
	StateExhausted       State = "exhausted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateAbandoned || s == StateExhausted
}

const (
	DefaultMaxAttempts = 5
	DefaultTTL         = 5 * time.Minute
)

// Verdict is the outcome of a code check. Tokens is set when the provider
// released the session tokens along with a valid result.
type Verdict struct {
	Valid  bool
	Tokens *models.TokenSet
}

// Verifier checks a submitted code. An error means the check could not be
// performed and must not count as a failed attempt, unless it carries
// two_factor_exhausted, account_locked or two_factor_abandoned, which end the
// challenge.
type Verifier interface {
	Verify(ctx context.Context, code string) (Verdict, error)
}

// Challenge is one issued step-up challenge. All transitions happen under mu,
// so overlapping submissions are serialized and the attempt counter is
// decremented and compared as one step.
type Challenge struct {
	ID        string
	Method    models.TwoFactorMethod
	Contact   string
	IssuedAt  time.Time
	ExpiresAt time.Time

	mu                sync.Mutex
	attemptsRemaining int
	state             State
	verifier          Verifier
	backup            Verifier
	tokens            *models.TokenSet
}

// NewChallenge issues a challenge. backup may be nil when the account has no
// backup codes.
func NewChallenge(id string, method models.TwoFactorMethod, contact string, now time.Time, ttl time.Duration, attempts int, verifier, backup Verifier) *Challenge {
	return &Challenge{
		ID:                id,
		Method:            method,
		Contact:           contact,
		IssuedAt:          now,
		ExpiresAt:         now.Add(ttl),
		attemptsRemaining: attempts,
		state:             StateChallengeIssued,
		verifier:          verifier,
		backup:            backup,
	}
}

// State returns the current state.
func (c *Challenge) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AttemptsRemaining returns the attempts left before exhaustion.
func (c *Challenge) AttemptsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptsRemaining
}

// View is the consumer-safe projection.
func (c *Challenge) View() models.ChallengeView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Challenge) viewLocked() models.ChallengeView {
	return models.ChallengeView{
		ID:                c.ID,
		Method:            c.Method,
		MaskedContact:     models.MaskContact(c.Contact),
		AttemptsRemaining: c.attemptsRemaining,
		ExpiresAt:         c.ExpiresAt,
	}
}

// Attempt verifies code with the challenge's primary verifier.
func (c *Challenge) Attempt(ctx context.Context, code string, now time.Time) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptLocked(ctx, c.verifier, code, now)
}

// AttemptBackup redeems a backup code. The redeem and the transition to
// verified happen while the challenge lock is held; the verifier itself must
// consume the code atomically so other challenges cannot reuse it.
func (c *Challenge) AttemptBackup(ctx context.Context, code string, now time.Time) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backup == nil {
		return c.state, dErrors.New(dErrors.CodeBadRequest, "backup codes are not available for this account")
	}
	return c.attemptLocked(ctx, c.backup, code, now)
}

// ReleasedTokens returns the tokens handed over by the verifier that
// verified the challenge, or nil.
func (c *Challenge) ReleasedTokens() *models.TokenSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateVerified {
		return nil
	}
	return c.tokens
}

// Abandon cancels the challenge. It is a no-op on a terminal challenge.
func (c *Challenge) Abandon() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.state = StateAbandoned
	}
	return c.state
}

func (c *Challenge) attemptLocked(ctx context.Context, v Verifier, code string, now time.Time) (State, error) {
	if err := c.checkOpenLocked(now); err != nil {
		return c.state, err
	}

	verdict, err := v.Verify(ctx, code)
	switch {
	case dErrors.HasCode(err, dErrors.CodeTwoFactorExhausted), dErrors.HasCode(err, dErrors.CodeAccountLocked):
		c.attemptsRemaining = 0
		c.state = StateExhausted
		return c.state, err
	case dErrors.HasCode(err, dErrors.CodeTwoFactorAbandoned):
		c.state = StateAbandoned
		return c.state, err
	case err != nil:
		return c.state, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "could not verify code")
	}
	if verdict.Valid {
		c.state = StateVerified
		c.tokens = verdict.Tokens
		return c.state, nil
	}

	c.attemptsRemaining--
	if c.attemptsRemaining <= 0 {
		c.attemptsRemaining = 0
		c.state = StateExhausted
		return c.state, dErrors.New(dErrors.CodeTwoFactorExhausted, "too many failed attempts")
	}
	return c.state, dErrors.New(dErrors.CodeTwoFactorMismatch, "code does not match")
}

func (c *Challenge) checkOpenLocked(now time.Time) error {
	switch c.state {
	case StateVerified:
		return dErrors.New(dErrors.CodeInvariantViolation, "challenge already verified")
	case StateExhausted:
		return dErrors.New(dErrors.CodeTwoFactorExhausted, "too many failed attempts")
	case StateAbandoned:
		return dErrors.New(dErrors.CodeTwoFactorAbandoned, "challenge abandoned")
	}
	if !now.Before(c.ExpiresAt) {
		c.state = StateAbandoned
		return dErrors.New(dErrors.CodeTwoFactorAbandoned, "challenge expired")
	}
	if c.attemptsRemaining <= 0 {
		c.state = StateExhausted
		return dErrors.New(dErrors.CodeTwoFactorExhausted, "too many failed attempts")
	}
	return nil
}
