package federated

import (
	"context"
	"strings"
	"time"
)

// ProviderToken is the token material handed over by the federated transport.
type ProviderToken struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Claims are the identity claims of the completed exchange, as decoded from
// the ID token or userinfo endpoint.
type Claims map[string]any

// String returns a trimmed string claim, or "".
func (c Claims) String(name string) string {
	v, _ := c[name].(string)
	return strings.TrimSpace(v)
}

// Strings returns a claim that may hold a single string or a list of strings.
func (c Claims) Strings(name string) []string {
	switch v := c[name].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []string{v}
		}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Transport is the federated identity provider's capability surface. The
// interactive login happens in the transport; by the time Exchange is called
// it has completed. Exchange returns the token and the claims of one login
// together and consumes them.
type Transport interface {
	Exchange(ctx context.Context) (ProviderToken, Claims, error)
	RefreshToken(ctx context.Context, refreshToken string) (ProviderToken, error)
	TriggerLogout(ctx context.Context, idTokenHint string) error
}
