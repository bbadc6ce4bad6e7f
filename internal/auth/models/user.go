package models

import (
	"strings"

	dErrors "backoffice/pkg/domain-errors"
)

// Provider identifies which identity source issued a session.
type Provider string

const (
	ProviderLocal     Provider = "local"
	ProviderFederated Provider = "federated"
)

func (p Provider) Valid() bool {
	return p == ProviderLocal || p == ProviderFederated
}

// AccountKind distinguishes staff accounts from customer-organization accounts.
type AccountKind string

const (
	AccountInternal AccountKind = "internal"
	AccountExternal AccountKind = "external"
)

func (k AccountKind) Valid() bool {
	return k == AccountInternal || k == AccountExternal
}

// AuthUser is the authenticated identity as the rest of the front end sees it.
// It is a value: replace it wholesale, never mutate fields in place.
type AuthUser struct {
	ID             string
	Email          string
	DisplayName    string
	AvatarURL      string
	Role           Role
	AccountKind    AccountKind
	OrganizationID string
}

// UserInput carries the fields NewAuthUser validates.
type UserInput struct {
	ID             string
	Email          string
	DisplayName    string
	AvatarURL      string
	Role           Role
	AccountKind    AccountKind
	OrganizationID string
}

// NewAuthUser is the single construction point for AuthUser. Organization
// membership is required for external accounts and forbidden for internal ones.
func NewAuthUser(in UserInput) (AuthUser, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return AuthUser{}, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if !in.Role.Valid() {
		return AuthUser{}, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	if !in.AccountKind.Valid() {
		return AuthUser{}, dErrors.New(dErrors.CodeInvalidInput, "unknown account kind")
	}
	org := strings.TrimSpace(in.OrganizationID)
	switch {
	case in.AccountKind == AccountExternal && org == "":
		return AuthUser{}, dErrors.New(dErrors.CodeInvalidInput, "external accounts require an organization")
	case in.AccountKind == AccountInternal && org != "":
		return AuthUser{}, dErrors.New(dErrors.CodeInvalidInput, "internal accounts cannot belong to an organization")
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = strings.TrimSpace(in.Email)
	}
	return AuthUser{
		ID:             id,
		Email:          strings.TrimSpace(in.Email),
		DisplayName:    display,
		AvatarURL:      strings.TrimSpace(in.AvatarURL),
		Role:           in.Role,
		AccountKind:    in.AccountKind,
		OrganizationID: org,
	}, nil
}

// Validate re-checks the construction invariants, used when a user is
// decoded from durable storage.
func (u AuthUser) Validate() error {
	_, err := NewAuthUser(UserInput(u))
	return err
}
