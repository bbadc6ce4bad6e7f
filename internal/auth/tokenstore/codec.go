package tokenstore

import (
	"encoding/json"
	"fmt"
	"time"

	"backoffice/internal/auth/models"
	"backoffice/pkg/platform/sentinel"
)

const recordVersion = 1

// record is the persisted envelope. Field names are part of the on-disk
// format; bump recordVersion when they change. A cleared record is the
// tombstone written when a logout could not delete the key.
type record struct {
	Version int           `json:"version"`
	Cleared bool          `json:"cleared,omitempty"`
	Session sessionRecord `json:"session,omitzero"`
}

type sessionRecord struct {
	User      userRecord   `json:"user"`
	Tokens    tokensRecord `json:"tokens"`
	Provider  string       `json:"provider"`
	CreatedAt time.Time    `json:"created_at"`
}

type userRecord struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Role           string `json:"role"`
	AccountKind    string `json:"account_kind"`
	OrganizationID string `json:"organization_id,omitempty"`
}

type tokensRecord struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

func encode(s *models.AuthSession) ([]byte, error) {
	rec := record{
		Version: recordVersion,
		Session: sessionRecord{
			User: userRecord{
				ID:             s.User.ID,
				Email:          s.User.Email,
				DisplayName:    s.User.DisplayName,
				AvatarURL:      s.User.AvatarURL,
				Role:           string(s.User.Role),
				AccountKind:    string(s.User.AccountKind),
				OrganizationID: s.User.OrganizationID,
			},
			Tokens: tokensRecord{
				AccessToken:  s.Tokens.AccessToken,
				IDToken:      s.Tokens.IDToken,
				RefreshToken: s.Tokens.RefreshToken,
				ExpiresAt:    s.Tokens.ExpiresAt,
			},
			Provider:  string(s.Provider),
			CreatedAt: s.CreatedAt,
		},
	}
	return json.Marshal(rec)
}

func encodeTombstone() ([]byte, error) {
	return json.Marshal(record{Version: recordVersion, Cleared: true})
}

// decode rebuilds a session and re-checks every construction invariant, so a
// tampered role or missing organization is treated as corruption.
func decode(raw []byte) (*models.AuthSession, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrCorrupt, err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", sentinel.ErrCorrupt, rec.Version)
	}
	if rec.Cleared {
		return nil, fmt.Errorf("session was cleared: %w", sentinel.ErrNotFound)
	}
	u := rec.Session.User
	user, err := models.NewAuthUser(models.UserInput{
		ID:             u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		AvatarURL:      u.AvatarURL,
		Role:           models.Role(u.Role),
		AccountKind:    models.AccountKind(u.AccountKind),
		OrganizationID: u.OrganizationID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrCorrupt, err)
	}
	t := rec.Session.Tokens
	session := &models.AuthSession{
		User: user,
		Tokens: models.TokenSet{
			AccessToken:  t.AccessToken,
			IDToken:      t.IDToken,
			RefreshToken: t.RefreshToken,
			ExpiresAt:    t.ExpiresAt,
		},
		Provider:  models.Provider(rec.Session.Provider),
		CreatedAt: rec.Session.CreatedAt,
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrCorrupt, err)
	}
	return session, nil
}
