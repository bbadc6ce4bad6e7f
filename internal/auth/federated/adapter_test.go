package federated_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"backoffice/internal/auth/federated"
	"backoffice/internal/auth/federated/mocks"
	"backoffice/internal/auth/models"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/circuit"
	"backoffice/pkg/requestcontext"
)

//go:generate mockgen -source=transport.go -destination=mocks/transport_mock.go -package=mocks Transport

type stubPolicies struct {
	policy models.TwoFactorPolicy
	err    error
}

func (p stubPolicies) TwoFactorPolicy(context.Context, models.AuthUser) (models.TwoFactorPolicy, error) {
	return p.policy, p.err
}

type unmappedCounter struct{ n atomic.Int32 }

func (c *unmappedCounter) IncrementUnmappedRole(string) { c.n.Add(1) }

type AdapterSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	transport *mocks.MockTransport
	unmapped  *unmappedCounter
	adapter   *federated.Adapter
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func (s *AdapterSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.transport = mocks.NewMockTransport(gomock.NewController(s.T()))
	s.unmapped = &unmappedCounter{}
	var err error
	s.adapter, err = federated.New(s.transport, federated.WithMetrics(s.unmapped))
	s.Require().NoError(err)
}

func (s *AdapterSuite) token() federated.ProviderToken {
	return federated.ProviderToken{
		AccessToken:  "fed-at",
		IDToken:      "fed-id",
		RefreshToken: "fed-rt",
		ExpiresAt:    s.now.Add(time.Hour + 750*time.Millisecond),
	}
}

func (s *AdapterSuite) TestExchangeForSession() {
	s.Run("builds an internal user from claims", func() {
		claims := federated.Claims{
			"sub":     "fed|42",
			"email":   "ana.lopez@partner.example",
			"name":    "Ana López",
			"picture": "https://cdn.example/ana.png",
			"roles":   []any{"employee", "readonly"},
		}

		session, err := s.adapter.ExchangeForSession(s.ctx, s.token(), claims)
		s.Require().NoError(err)
		s.Equal(models.ProviderFederated, session.Provider)
		s.Equal("fed|42", session.User.ID)
		s.Equal("Ana López", session.User.DisplayName)
		s.Equal(models.RoleStaff, session.User.Role)
		s.Equal(models.AccountInternal, session.User.AccountKind)
		s.Equal(s.now.Add(time.Hour), session.Tokens.ExpiresAt)
		s.Equal(s.now, session.CreatedAt)
	})

	s.Run("organization claim makes an external account", func() {
		claims := federated.Claims{"sub": "fed|7", "email": "bo@acme.example", "roles": "partner", "org_id": "org-acme"}

		session, err := s.adapter.ExchangeForSession(s.ctx, s.token(), claims)
		s.Require().NoError(err)
		s.Equal(models.AccountExternal, session.User.AccountKind)
		s.Equal("org-acme", session.User.OrganizationID)
		s.Equal(models.RoleCustomer, session.User.Role)
		s.Equal("Bo", session.User.DisplayName)
	})

	s.Run("highest mapped role wins and superadmin maps to admin", func() {
		claims := federated.Claims{"sub": "fed|1", "roles": []string{"readonly", "superadmin", "employee"}}

		session, err := s.adapter.ExchangeForSession(s.ctx, s.token(), claims)
		s.Require().NoError(err)
		s.Equal(models.RoleAdmin, session.User.Role)
	})

	s.Run("matching is exact after trimming", func() {
		before := s.unmapped.n.Load()
		claims := federated.Claims{"sub": "fed|2", "roles": []any{"Admin", "ADMIN", "admin "}}

		session, err := s.adapter.ExchangeForSession(s.ctx, s.token(), claims)
		s.Require().NoError(err)
		// "admin " trims to a mapped value; the other two do not match.
		s.Equal(models.RoleAdmin, session.User.Role)

		claims = federated.Claims{"sub": "fed|3", "roles": []any{"Admin", "root"}}
		session, err = s.adapter.ExchangeForSession(s.ctx, s.token(), claims)
		s.Require().NoError(err)
		s.Equal(models.RoleViewer, session.User.Role)
		s.Equal(before+1, s.unmapped.n.Load())
	})

	s.Run("missing subject is invalid credentials", func() {
		_, err := s.adapter.ExchangeForSession(s.ctx, s.token(), federated.Claims{"email": "x@y.example"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("same input yields the same user", func() {
		claims := federated.Claims{"sub": "fed|9", "email": "cy@corp.example", "roles": "admin"}
		first, err := s.adapter.ExchangeForSession(s.ctx, s.token(), claims)
		s.Require().NoError(err)
		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
		second, err := s.adapter.ExchangeForSession(later, s.token(), claims)
		s.Require().NoError(err)

		s.Equal(first.User, second.User)
		s.Equal(first.Provider, second.Provider)
		s.Equal(first.Tokens, second.Tokens)
	})
}

func (s *AdapterSuite) TestAuthenticate() {
	s.Run("requires federated credentials", func() {
		_, err := s.adapter.Authenticate(s.ctx, models.PasswordCredentials("a@b.example", "x"))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("transport failure is provider unavailable", func() {
		s.transport.EXPECT().Exchange(gomock.Any()).Return(federated.ProviderToken{}, nil, errors.New("connection reset"))

		_, err := s.adapter.Authenticate(s.ctx, models.FederatedCredentials())
		s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	})

	s.Run("exchange is collected once per login", func() {
		s.transport.EXPECT().Exchange(gomock.Any()).Return(s.token(), federated.Claims{"sub": "fed|42"}, nil).Times(1)

		_, err := s.adapter.Authenticate(s.ctx, models.FederatedCredentials())
		s.Require().NoError(err)
	})

	s.Run("grant without policy lookup needs no step-up", func() {
		s.transport.EXPECT().Exchange(gomock.Any()).Return(s.token(), federated.Claims{"sub": "fed|42", "roles": "admin"}, nil)

		grant, err := s.adapter.Authenticate(s.ctx, models.FederatedCredentials())
		s.Require().NoError(err)
		s.Equal(models.ProviderFederated, grant.Provider)
		s.Equal(models.RoleAdmin, grant.User.Role)
		s.False(grant.TwoFactor.Required)
	})
}

func (s *AdapterSuite) TestAuthenticateWithPolicyLookup() {
	policy := models.TwoFactorPolicy{Required: true, Method: models.MethodSMS, Contact: "+15551234567"}
	adapter, err := federated.New(s.transport, federated.WithPolicyLookup(stubPolicies{policy: policy}))
	s.Require().NoError(err)
	s.transport.EXPECT().Exchange(gomock.Any()).Return(s.token(), federated.Claims{"sub": "fed|42"}, nil)

	grant, err := adapter.Authenticate(s.ctx, models.FederatedCredentials())
	s.Require().NoError(err)
	s.Equal(policy, grant.TwoFactor)

	broken, err := federated.New(s.transport, federated.WithPolicyLookup(stubPolicies{err: errors.New("db down")}))
	s.Require().NoError(err)
	s.transport.EXPECT().Exchange(gomock.Any()).Return(s.token(), federated.Claims{"sub": "fed|42"}, nil)

	_, err = broken.Authenticate(s.ctx, models.FederatedCredentials())
	s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
}

func (s *AdapterSuite) TestRefresh() {
	s.Run("without refresh token", func() {
		_, err := s.adapter.Refresh(s.ctx, models.TokenSet{AccessToken: "at"})
		s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))
	})

	s.Run("keeps tokens the provider did not rotate", func() {
		s.transport.EXPECT().RefreshToken(gomock.Any(), "fed-rt").
			Return(federated.ProviderToken{AccessToken: "fed-at-2", ExpiresAt: s.now.Add(time.Hour)}, nil)

		got, err := s.adapter.Refresh(s.ctx, models.TokenSet{AccessToken: "fed-at", IDToken: "fed-id", RefreshToken: "fed-rt"})
		s.Require().NoError(err)
		s.Equal("fed-at-2", got.AccessToken)
		s.Equal("fed-rt", got.RefreshToken)
		s.Equal("fed-id", got.IDToken)
	})

	s.Run("coded rejection passes through", func() {
		s.transport.EXPECT().RefreshToken(gomock.Any(), "revoked").
			Return(federated.ProviderToken{}, dErrors.New(dErrors.CodeTokenExpired, "invalid_grant"))

		_, err := s.adapter.Refresh(s.ctx, models.TokenSet{AccessToken: "at", RefreshToken: "revoked"})
		s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))
	})
}

func (s *AdapterSuite) TestConcurrentRefreshSharesOneCall() {
	release := make(chan struct{})
	s.transport.EXPECT().RefreshToken(gomock.Any(), "fed-rt").
		DoAndReturn(func(context.Context, string) (federated.ProviderToken, error) {
			<-release
			return federated.ProviderToken{AccessToken: "fed-at-2", RefreshToken: "fed-rt-2"}, nil
		}).
		Times(1)

	var wg sync.WaitGroup
	results := make([]models.TokenSet, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.adapter.Refresh(s.ctx, models.TokenSet{AccessToken: "fed-at", RefreshToken: "fed-rt"})
			assert.NoError(s.T(), err)
			results[i] = got
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, got := range results {
		s.Equal("fed-rt-2", got.RefreshToken)
	}
}

func (s *AdapterSuite) TestLogout() {
	s.Run("passes the id token hint", func() {
		s.transport.EXPECT().TriggerLogout(gomock.Any(), "fed-id").Return(nil)
		s.NoError(s.adapter.Logout(s.ctx, models.TokenSet{AccessToken: "at", IDToken: "fed-id"}))
	})

	s.Run("times out", func() {
		adapter, err := federated.New(s.transport, federated.WithLogoutTimeout(20*time.Millisecond))
		s.Require().NoError(err)
		s.transport.EXPECT().TriggerLogout(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ string) error {
				<-ctx.Done()
				return ctx.Err()
			})

		start := time.Now()
		err = adapter.Logout(s.ctx, models.TokenSet{AccessToken: "at"})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		s.Less(time.Since(start), time.Second)
	})
}

func (s *AdapterSuite) TestLogoutBreakerFailsFast() {
	breaker := circuit.New("test-logout", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	adapter, err := federated.New(s.transport, federated.WithBreaker(breaker))
	s.Require().NoError(err)
	s.transport.EXPECT().TriggerLogout(gomock.Any(), gomock.Any()).Return(errors.New("503")).Times(2)

	for range 2 {
		s.True(dErrors.HasCode(adapter.Logout(s.ctx, models.TokenSet{AccessToken: "at"}), dErrors.CodeProviderUnavailable))
	}
	s.True(breaker.IsOpen())

	err = adapter.Logout(s.ctx, models.TokenSet{AccessToken: "at"})
	s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
}

type discardingTransport struct {
	*mocks.MockTransport
	discarded int
}

func (d *discardingTransport) Discard() { d.discarded++ }

func (s *AdapterSuite) TestLogoutDiscardsExchangeEvenWhenBreakerIsOpen() {
	transport := &discardingTransport{MockTransport: s.transport}
	breaker := circuit.New("test-logout", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	adapter, err := federated.New(transport, federated.WithBreaker(breaker))
	s.Require().NoError(err)
	s.transport.EXPECT().TriggerLogout(gomock.Any(), gomock.Any()).Return(errors.New("503"))

	s.Error(adapter.Logout(s.ctx, models.TokenSet{AccessToken: "at"}))
	s.Require().True(breaker.IsOpen())
	s.Error(adapter.Logout(s.ctx, models.TokenSet{AccessToken: "at"}))

	s.Equal(2, transport.discarded)
}
