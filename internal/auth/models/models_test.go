package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "backoffice/pkg/domain-errors"
)

func TestNewAuthUser_OrganizationInvariant(t *testing.T) {
	t.Run("external requires organization", func(t *testing.T) {
		_, err := NewAuthUser(UserInput{ID: "u1", Role: RoleCustomer, AccountKind: AccountExternal})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	t.Run("internal rejects organization", func(t *testing.T) {
		_, err := NewAuthUser(UserInput{ID: "u1", Role: RoleStaff, AccountKind: AccountInternal, OrganizationID: "org-1"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	t.Run("display name falls back to email", func(t *testing.T) {
		u, err := NewAuthUser(UserInput{ID: "u1", Email: "ana@acme.test", Role: RoleCustomer, AccountKind: AccountExternal, OrganizationID: "org-1"})
		require.NoError(t, err)
		assert.Equal(t, "ana@acme.test", u.DisplayName)
		assert.Equal(t, "org-1", u.OrganizationID)
	})
	t.Run("unknown role rejected", func(t *testing.T) {
		_, err := NewAuthUser(UserInput{ID: "u1", Role: Role("root"), AccountKind: AccountInternal})
		assert.Error(t, err)
	})
}

func TestRole_Ordering(t *testing.T) {
	assert.True(t, RoleAdmin.IsElevated())
	assert.False(t, RoleStaff.IsElevated())
	assert.False(t, RoleViewer.IsElevated())
	assert.Greater(t, RoleAdmin.Rank(), RoleStaff.Rank())
	assert.Greater(t, RoleCustomer.Rank(), RoleViewer.Rank())
	assert.Equal(t, -1, Role("superadmin").Rank())
}

func TestSession_Validate(t *testing.T) {
	user, err := NewAuthUser(UserInput{ID: "u1", Role: RoleStaff, AccountKind: AccountInternal})
	require.NoError(t, err)

	_, err = NewSession(user, TokenSet{}, ProviderLocal, time.Now())
	assert.Error(t, err, "access token is required")

	s, err := NewSession(user, TokenSet{AccessToken: "at"}, ProviderLocal, time.Now())
	require.NoError(t, err)
	c := s.Clone()
	c.Tokens.AccessToken = "other"
	assert.Equal(t, "at", s.Tokens.AccessToken)
}

func TestMaskContact(t *testing.T) {
	assert.Equal(t, "a**@acme.test", MaskContact("ana@acme.test"))
	assert.Equal(t, "*******4567", MaskContact("+5552344567"))
	assert.Equal(t, "", MaskContact(""))
}

func TestCredentials_IdentifierDomain(t *testing.T) {
	assert.Equal(t, "corp.example", PasswordCredentials("Bob@Corp.Example", "x").IdentifierDomain())
	assert.Equal(t, "", PasswordCredentials("bob", "x").IdentifierDomain())
}
