package httpbackend_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"backoffice/internal/auth/local"
	"backoffice/internal/auth/local/accounts"
	"backoffice/internal/auth/local/httpbackend"
	jwttoken "backoffice/internal/jwt_token"
	"backoffice/internal/notify"
	httptransport "backoffice/internal/transport/http"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/sentinel"
)

const password = "correct-horse-battery-9"

type ClientSuite struct {
	suite.Suite
	ctx    context.Context
	outbox *notify.Recorder
	server *httptest.Server
	client *httpbackend.Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = notify.NewRecorder(4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwt := jwttoken.NewJWTService("test-key", "backoffice-accounts", "backoffice")
	cfg := accounts.DefaultConfig()
	cfg.HashCost = bcrypt.MinCost
	svc, err := accounts.New(accounts.NewInMemory(), jwt,
		accounts.WithConfig(cfg),
		accounts.WithNotifier(s.outbox),
		accounts.WithLogger(logger),
	)
	s.Require().NoError(err)
	_, err = svc.Register(s.ctx, accounts.NewAccount{Email: "ana@corp.example", Password: password, Role: accounts.RoleSupport})
	s.Require().NoError(err)

	handler := httptransport.NewAccountsHandler(svc, jwttoken.NewJWTServiceAdapter(jwt), logger)
	s.server = httptest.NewServer(httptransport.NewRouter(logger, nil, handler))
	s.T().Cleanup(s.server.Close)

	s.client, err = httpbackend.New(s.server.URL+"/", httpbackend.WithTimeout(2*time.Second))
	s.Require().NoError(err)
}

func (s *ClientSuite) TestLoginRoundTrip() {
	res, err := s.client.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: password})
	s.Require().NoError(err)
	s.NotEmpty(res.Tokens.AccessToken)
	s.NotEmpty(res.Tokens.RefreshToken)
	s.Equal(accounts.RoleSupport, res.Profile.Role)
	s.False(res.TwoFactor.Enabled)

	refreshed, err := s.client.Refresh(s.ctx, res.Tokens.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(res.Tokens.RefreshToken, refreshed.RefreshToken)

	_, err = s.client.Refresh(s.ctx, res.Tokens.RefreshToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))
}

func (s *ClientSuite) TestRejectionsKeepTheirCode() {
	_, err := s.client.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: "wrong"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))

	_, err = s.client.Login(s.ctx, local.LoginRequest{Identifier: "ghost@corp.example", Secret: "wrong"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *ClientSuite) TestPasswordReset() {
	s.Require().NoError(s.client.RequestPasswordReset(s.ctx, "ana@corp.example"))
	msg, ok := s.outbox.Next()
	s.Require().True(ok)
	s.Equal(notify.TemplatePasswordReset, msg.Template)

	err := s.client.ResetPassword(s.ctx, msg.Params["token"], "short")
	s.True(dErrors.HasCode(err, dErrors.CodeWeakSecret))

	s.Require().NoError(s.client.ResetPassword(s.ctx, msg.Params["token"], "An0ther-long-passphrase"))
	err = s.client.ResetPassword(s.ctx, msg.Params["token"], "An0ther-long-passphrase")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidResetToken))

	_, err = s.client.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: "An0ther-long-passphrase"})
	s.NoError(err)
}

func (s *ClientSuite) TestTOTPEnrollment() {
	res, err := s.client.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: password})
	s.Require().NoError(err)
	access := res.Tokens.AccessToken

	_, err = s.client.BeginTOTPEnrollment(s.ctx, "not-a-jwt")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	enrollment, err := s.client.BeginTOTPEnrollment(s.ctx, access)
	s.Require().NoError(err)
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	s.Require().NoError(err)

	backups, err := s.client.ConfirmTOTPEnrollment(s.ctx, access, code)
	s.Require().NoError(err)
	s.Require().NotEmpty(backups)

	stepUp, err := s.client.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: password})
	s.Require().NoError(err)
	s.Require().NotNil(stepUp.StepUp)
	s.Empty(stepUp.Tokens.AccessToken)

	_, err = s.client.BeginTOTPEnrollment(s.ctx, stepUp.StepUp.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.client.VerifyStepUp(s.ctx, stepUp.StepUp.Token, "000000x")
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch))
	bundle, err := s.client.VerifyStepUp(s.ctx, stepUp.StepUp.Token, code)
	s.Require().NoError(err)
	s.NotEmpty(bundle.AccessToken)
	_, err = s.client.VerifyStepUp(s.ctx, stepUp.StepUp.Token, code)
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorAbandoned))

	stepUp, err = s.client.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: password})
	s.Require().NoError(err)
	bundle, err = s.client.RedeemBackupCode(s.ctx, stepUp.StepUp.Token, backups[0])
	s.Require().NoError(err)
	s.NotEmpty(bundle.RefreshToken)
}

func (s *ClientSuite) TestInfrastructureFailuresAreUnavailable() {
	s.Run("plain 502", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()
		c, err := httpbackend.New(srv.URL)
		s.Require().NoError(err)

		_, err = c.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: password})
		s.True(errors.Is(err, sentinel.ErrUnavailable))
		s.False(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("coded internal error", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal_error"}`))
		}))
		defer srv.Close()
		c, err := httpbackend.New(srv.URL)
		s.Require().NoError(err)

		_, err = c.Refresh(s.ctx, "rt")
		s.True(errors.Is(err, sentinel.ErrUnavailable))
	})

	s.Run("unreachable", func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, err := httpbackend.New(url)
		s.Require().NoError(err)

		err = c.RequestPasswordReset(s.ctx, "ana@corp.example")
		s.True(errors.Is(err, sentinel.ErrUnavailable))
	})
}

func (s *ClientSuite) TestNewRequiresBaseURL() {
	_, err := httpbackend.New("  ")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
