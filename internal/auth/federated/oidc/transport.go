// Package oidc is the federated transport for an OpenID Connect provider:
// PKCE authorization-code login, ID token verification, refresh and
// RP-initiated logout.
package oidc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"backoffice/internal/auth/federated"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/sentinel"
)

type Config struct {
	Issuer          string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	Scopes          []string
	LogoutReturnURL string
}

// ExchangeTTL bounds how long a completed exchange waits to be collected.
const ExchangeTTL = 2 * time.Minute

// Flow is one pending authorization-code login.
type Flow struct {
	URL      string
	State    string
	verifier string
	nonce    string
}

type exchange struct {
	token       federated.ProviderToken
	claims      federated.Claims
	completedAt time.Time
}

// Transport holds at most one completed exchange. Exchange hands it over
// once and forgets it.
type Transport struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	endSession string
	returnURL  string
	clientID   string
	http       *http.Client

	now       func() time.Time
	mu        sync.Mutex
	completed *exchange
}

// New discovers the provider configuration from the issuer.
func New(ctx context.Context, cfg Config, client *http.Client) (*Transport, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc issuer and client id are required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx = oidc.ClientContext(ctx, client)

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider %s: %w", cfg.Issuer, err)
	}
	var meta struct {
		EndSession string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("decode oidc discovery document: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}
	return &Transport{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		endSession: meta.EndSession,
		returnURL:  cfg.LogoutReturnURL,
		clientID:   cfg.ClientID,
		http:       client,
		now:        time.Now,
	}, nil
}

// Begin starts a login: the caller sends the user to Flow.URL and hands the
// returned code to Complete.
func (t *Transport) Begin() (*Flow, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	nonce, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	return &Flow{
		URL: t.oauth.AuthCodeURL(state,
			oauth2.AccessTypeOffline,
			oauth2.S256ChallengeOption(verifier),
			oidc.Nonce(nonce),
		),
		State:    state,
		verifier: verifier,
		nonce:    nonce,
	}, nil
}

// Complete exchanges the authorization code, verifies the ID token and keeps
// the result for the adapter.
func (t *Transport) Complete(ctx context.Context, flow *Flow, code, state string) error {
	if flow == nil || state == "" || state != flow.State {
		return dErrors.New(dErrors.CodeInvalidCredentials, "authorization state mismatch")
	}
	if code == "" {
		return dErrors.New(dErrors.CodeInvalidCredentials, "authorization code is missing")
	}
	ctx = oidc.ClientContext(ctx, t.http)

	tok, err := t.oauth.Exchange(ctx, code, oauth2.VerifierOption(flow.verifier))
	if err != nil {
		return classify(err, "exchange authorization code")
	}
	ex, err := t.verify(ctx, tok, "", flow.nonce)
	if err != nil {
		return err
	}
	ex.completedAt = t.now()

	t.mu.Lock()
	t.completed = ex
	t.mu.Unlock()
	return nil
}

// Exchange returns the token and claims of the completed login together and
// clears them, so each exchange is collected at most once. Exchanges older
// than ExchangeTTL are discarded.
func (t *Transport) Exchange(context.Context) (federated.ProviderToken, federated.Claims, error) {
	t.mu.Lock()
	ex := t.completed
	t.completed = nil
	t.mu.Unlock()

	if ex == nil {
		return federated.ProviderToken{}, nil, fmt.Errorf("no completed oidc exchange: %w", sentinel.ErrInvalidState)
	}
	if t.now().Sub(ex.completedAt) > ExchangeTTL {
		return federated.ProviderToken{}, nil, fmt.Errorf("completed oidc exchange is stale: %w", sentinel.ErrExpired)
	}
	return ex.token, ex.claims, nil
}

// Discard drops a completed exchange that was never collected.
func (t *Transport) Discard() {
	t.mu.Lock()
	t.completed = nil
	t.mu.Unlock()
}

// RefreshToken redeems a refresh token. A rejected grant is token_expired.
func (t *Transport) RefreshToken(ctx context.Context, refreshToken string) (federated.ProviderToken, error) {
	ctx = oidc.ClientContext(ctx, t.http)
	tok, err := t.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return federated.ProviderToken{}, classify(err, "refresh token")
	}
	ex, err := t.verify(ctx, tok, refreshToken, "")
	if err != nil {
		return federated.ProviderToken{}, err
	}
	return ex.token, nil
}

// TriggerLogout calls the discovered end_session_endpoint. Providers without
// one have nothing to end.
func (t *Transport) TriggerLogout(ctx context.Context, idTokenHint string) error {
	t.Discard()

	if t.endSession == "" {
		return nil
	}
	u, err := url.Parse(t.endSession)
	if err != nil {
		return fmt.Errorf("parse end_session_endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", t.clientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if t.returnURL != "" {
		q.Set("post_logout_redirect_uri", t.returnURL)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	client := *t.http
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout returned %s: %w", resp.Status, sentinel.ErrUnavailable)
	}
	return nil
}

// verify checks the ID token when present. Refresh responses may omit it.
// A non-empty nonce must match the token's nonce claim.
func (t *Transport) verify(ctx context.Context, tok *oauth2.Token, previousRefresh, nonce string) (*exchange, error) {
	pt := federated.ProviderToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if pt.RefreshToken == "" {
		pt.RefreshToken = previousRefresh
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		if previousRefresh == "" {
			return nil, dErrors.New(dErrors.CodeProviderUnavailable, "token response has no id_token")
		}
		return &exchange{token: pt}, nil
	}
	idToken, err := t.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredentials, "id token failed verification")
	}
	if nonce != "" && subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "id token nonce mismatch")
	}
	claims := federated.Claims{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "decode id token claims")
	}
	pt.IDToken = rawID
	if pt.ExpiresAt.IsZero() {
		pt.ExpiresAt = idToken.Expiry
	}
	return &exchange{token: pt, claims: claims}, nil
}

func classify(err error, op string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
		return dErrors.Wrap(err, dErrors.CodeTokenExpired, op+": grant rejected")
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
