package models

import (
	"time"

	dErrors "backoffice/pkg/domain-errors"
)

// TokenSet is the credential material bound to one session.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthSession is the committed authenticated state. It exists in full or not
// at all; there is no partially-authenticated session.
type AuthSession struct {
	User      AuthUser
	Tokens    TokenSet
	Provider  Provider
	CreatedAt time.Time
}

// NewSession builds a validated session.
func NewSession(user AuthUser, tokens TokenSet, provider Provider, now time.Time) (*AuthSession, error) {
	s := &AuthSession{
		User:      user,
		Tokens:    tokens,
		Provider:  provider,
		CreatedAt: now.UTC(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks structural integrity. Expiry is evaluated separately by
// the token store.
func (s *AuthSession) Validate() error {
	if s == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "session is nil")
	}
	if err := s.User.Validate(); err != nil {
		return err
	}
	if s.Tokens.AccessToken == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "access token is required")
	}
	if !s.Provider.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown provider")
	}
	if s.CreatedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "created_at is required")
	}
	return nil
}

// Clone returns an independent copy.
func (s *AuthSession) Clone() *AuthSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
