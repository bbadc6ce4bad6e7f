package local_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"backoffice/internal/auth/local"
	"backoffice/internal/auth/local/mocks"
	"backoffice/internal/auth/models"
	dErrors "backoffice/pkg/domain-errors"
)

//go:generate mockgen -source=backend.go -destination=mocks/backend_mock.go -package=mocks Backend
type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	backend  *mocks.MockBackend
	service  *local.Service
	unmapped *countingRecorder
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.backend = mocks.NewMockBackend(s.ctrl)
	s.unmapped = &countingRecorder{}
	svc, err := local.New(s.backend, local.WithMetrics(s.unmapped))
	s.Require().NoError(err)
	s.service = svc
}

func loginResponse(role string) *local.LoginResponse {
	return &local.LoginResponse{
		Tokens: local.TokenBundle{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Date(2026, 5, 1, 10, 15, 0, 0, time.UTC),
		},
		Profile: local.Profile{
			ID:          "acc-1",
			Email:       "ana@corp.example",
			DisplayName: "Ana Ops",
			Role:        role,
			AccountKind: "internal",
		},
	}
}

func (s *ServiceSuite) TestLoginBuildsGrant() {
	s.backend.EXPECT().
		Login(gomock.Any(), local.LoginRequest{Identifier: "ana@corp.example", Secret: "pw"}).
		Return(loginResponse("ROLE_SUPPORT"), nil)

	grant, err := s.service.Login(s.ctx, "  Ana@Corp.example ", "pw")
	s.Require().NoError(err)
	s.Equal(models.RoleStaff, grant.User.Role)
	s.Equal(models.ProviderLocal, grant.Provider)
	s.Equal("refresh", grant.Tokens.RefreshToken)
	s.False(grant.TwoFactor.Required)
	s.Zero(s.unmapped.count)
}

func (s *ServiceSuite) TestLoginUnmappedRoleFallsBack() {
	s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(loginResponse("ROLE_ROOT"), nil)

	grant, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
	s.Require().NoError(err)
	s.Equal(models.RoleViewer, grant.User.Role)
	s.Equal(1, s.unmapped.count)
}

func stepUpResponse() *local.LoginResponse {
	resp := loginResponse("ROLE_ADMIN")
	resp.Tokens = local.TokenBundle{}
	resp.StepUp = &local.StepUp{Token: "step-up", ExpiresAt: time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC)}
	resp.TwoFactor = local.TwoFactorStatus{Enabled: true, Method: "totp", BackupCodes: true}
	return resp
}

func (s *ServiceSuite) TestLoginCarriesTwoFactorPolicy() {
	s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(stepUpResponse(), nil)

	grant, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
	s.Require().NoError(err)
	s.True(grant.TwoFactor.Required)
	s.Equal(models.MethodTOTP, grant.TwoFactor.Method)
	s.True(grant.TwoFactor.BackupCodes)
	s.Equal("step-up", grant.StepUp)
	s.Empty(grant.Tokens.AccessToken)
}

func (s *ServiceSuite) TestLoginIgnoresTokensSentWithStepUp() {
	resp := stepUpResponse()
	resp.Tokens = local.TokenBundle{AccessToken: "leaked", RefreshToken: "leaked"}
	s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(resp, nil)

	grant, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
	s.Require().NoError(err)
	s.Equal(models.TokenSet{}, grant.Tokens)
}

func (s *ServiceSuite) TestLoginRequiresStepUpHandleForTwoFactorAccounts() {
	resp := stepUpResponse()
	resp.StepUp = nil
	s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(resp, nil)

	_, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
	s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
}

func (s *ServiceSuite) TestCompleteStepUp() {
	bundle := &local.TokenBundle{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}

	s.Run("success returns the withheld tokens", func() {
		s.backend.EXPECT().VerifyStepUp(gomock.Any(), "step-up", "123456").Return(bundle, nil)
		tokens, err := s.service.CompleteStepUp(s.ctx, "step-up", " 123456 ")
		s.Require().NoError(err)
		s.Equal("access", tokens.AccessToken)
		s.Equal("refresh", tokens.RefreshToken)
	})
	s.Run("mismatch keeps its code", func() {
		s.backend.EXPECT().VerifyStepUp(gomock.Any(), "step-up", "000000").
			Return(nil, dErrors.New(dErrors.CodeTwoFactorMismatch, "no"))
		_, err := s.service.CompleteStepUp(s.ctx, "step-up", "000000")
		s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch))
	})
	s.Run("empty bundle is a backend fault", func() {
		s.backend.EXPECT().RedeemBackupCode(gomock.Any(), "step-up", "AAAAABBBBB").Return(&local.TokenBundle{}, nil)
		_, err := s.service.RedeemBackupCode(s.ctx, "step-up", "aaaaa-bbbbb")
		s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	})
}

func (s *ServiceSuite) TestLoginRejectsBadIdentifierWithoutBackendCall() {
	_, err := s.service.Login(s.ctx, "not-an-email", "pw")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestLoginErrorTranslation() {
	s.Run("coded rejection passes through", func() {
		s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAccountLocked, "locked"))
		_, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})
	s.Run("transport failure becomes provider_unavailable", func() {
		s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
		_, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
		s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	})
	s.Run("invalid profile becomes provider_unavailable", func() {
		resp := loginResponse("ROLE_STAFF")
		resp.Profile.AccountKind = "external"
		s.backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(resp, nil)
		_, err := s.service.Login(s.ctx, "ana@corp.example", "pw")
		s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	})
}

func (s *ServiceSuite) TestRefreshKeepsRefreshTokenWhenNotRotated() {
	s.backend.EXPECT().Refresh(gomock.Any(), "refresh").
		Return(&local.TokenBundle{AccessToken: "access-2", ExpiresAt: time.Now().Add(time.Minute)}, nil)

	got, err := s.service.Refresh(s.ctx, models.TokenSet{AccessToken: "access", RefreshToken: "refresh", IDToken: "id"})
	s.Require().NoError(err)
	s.Equal("access-2", got.AccessToken)
	s.Equal("refresh", got.RefreshToken)
	s.Equal("id", got.IDToken)
}

func (s *ServiceSuite) TestRefreshWithoutRefreshToken() {
	_, err := s.service.Refresh(s.ctx, models.TokenSet{AccessToken: "access"})
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))
}

func (s *ServiceSuite) TestRequestPasswordResetNeverFails() {
	s.backend.EXPECT().RequestPasswordReset(gomock.Any(), "ghost@corp.example").Return(errors.New("timeout"))
	s.NoError(s.service.RequestPasswordReset(s.ctx, "ghost@corp.example"))
	s.NoError(s.service.RequestPasswordReset(s.ctx, "garbage"))
}

func (s *ServiceSuite) TestResetPasswordChecksStrengthLocally() {
	err := s.service.ResetPassword(s.ctx, "token", "short")
	s.True(dErrors.HasCode(err, dErrors.CodeWeakSecret))

	s.backend.EXPECT().ResetPassword(gomock.Any(), "token", "correct-horse-battery-9").
		Return(dErrors.New(dErrors.CodeInvalidResetToken, "expired"))
	err = s.service.ResetPassword(s.ctx, "token", "correct-horse-battery-9")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidResetToken))
}

func (s *ServiceSuite) TestSetupTwoFactor() {
	s.backend.EXPECT().BeginTOTPEnrollment(gomock.Any(), "access").
		Return(&local.TOTPEnrollment{Secret: "JBSWY3DPEHPK3PXP", URI: "otpauth://totp/x"}, nil)
	setup, err := s.service.SetupTwoFactor(s.ctx, "access")
	s.Require().NoError(err)
	s.Equal("otpauth://totp/x", setup.QRPayload)

	s.backend.EXPECT().ConfirmTOTPEnrollment(gomock.Any(), "access", "123456").Return([]string{"AAAAA-BBBBB"}, nil)
	codes, err := s.service.VerifyTwoFactorSetup(s.ctx, "access", " 123456 ")
	s.Require().NoError(err)
	s.Len(codes, 1)
}

func (s *ServiceSuite) TestAuthenticateRequiresPassword() {
	_, err := s.service.Authenticate(s.ctx, models.FederatedCredentials())
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

type countingRecorder struct {
	count int
}

func (c *countingRecorder) IncrementUnmappedRole(string) {
	c.count++
}
