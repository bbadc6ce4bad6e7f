package accounts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"backoffice/internal/auth/local"
	jwttoken "backoffice/internal/jwt_token"
	"backoffice/internal/notify"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/audit"
	"backoffice/pkg/platform/audit/publisher"
	auditmemory "backoffice/pkg/platform/audit/store/memory"
	"backoffice/pkg/requestcontext"
)

const password = "correct-horse-battery-9"

type AccountsSuite struct {
	suite.Suite
	ctx     context.Context
	store   *InMemoryStore
	outbox  *notify.Recorder
	audit   *auditmemory.InMemoryStore
	service *Service
}

func TestAccountsSuite(t *testing.T) {
	suite.Run(t, new(AccountsSuite))
}

func (s *AccountsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.outbox = notify.NewRecorder(8)
	s.audit = auditmemory.NewInMemoryStore()
	cfg := DefaultConfig()
	cfg.HashCost = bcrypt.MinCost
	cfg.LockoutThreshold = 3
	svc, err := New(s.store, jwttoken.NewJWTService("test-key", "backoffice-accounts", "backoffice"),
		WithConfig(cfg),
		WithNotifier(s.outbox),
		WithAuditEmitter(publisher.NewPublisher(s.audit)),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *AccountsSuite) register(in NewAccount) *Account {
	if in.Password == "" {
		in.Password = password
	}
	a, err := s.service.Register(s.ctx, in)
	s.Require().NoError(err)
	return a
}

func (s *AccountsSuite) login(addr, secret string) (*local.LoginResponse, error) {
	return s.service.Login(s.ctx, local.LoginRequest{Identifier: addr, Secret: secret})
}

func (s *AccountsSuite) TestRegisterDefaults() {
	a := s.register(NewAccount{Email: " Ana.Maria-Lopez@Corp.example "})
	s.Equal("ana.maria-lopez@corp.example", a.Email)
	s.Equal("Ana Lopez", a.DisplayName)
	s.Equal(RoleUser, a.Role)
	s.Equal("internal", a.AccountKind)

	_, err := s.service.Register(s.ctx, NewAccount{Email: "ana.maria-lopez@corp.example", Password: password})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AccountsSuite) TestRegisterValidation() {
	_, err := s.service.Register(s.ctx, NewAccount{Email: "bad", Password: password})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	_, err = s.service.Register(s.ctx, NewAccount{Email: "a@corp.example", Password: "short"})
	s.True(dErrors.HasCode(err, dErrors.CodeWeakSecret))
	_, err = s.service.Register(s.ctx, NewAccount{Email: "a@corp.example", Password: password, AccountKind: "external"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *AccountsSuite) TestLoginIssuesTokens() {
	a := s.register(NewAccount{Email: "ops@corp.example", Role: RoleStaff})

	resp, err := s.login("OPS@corp.example", password)
	s.Require().NoError(err)
	s.Equal(a.ID, resp.Profile.ID)
	s.Equal(RoleStaff, resp.Profile.Role)
	s.NotEmpty(resp.Tokens.AccessToken)
	s.NotEmpty(resp.Tokens.IDToken)
	s.NotEmpty(resp.Tokens.RefreshToken)
	s.False(resp.TwoFactor.Enabled)

	exp, ok := jwttoken.ParseExpiry(resp.Tokens.AccessToken)
	s.True(ok)
	s.Equal(resp.Tokens.ExpiresAt.Unix(), exp.Unix())
}

func (s *AccountsSuite) TestLoginUnknownAndWrongPasswordLookAlike() {
	s.register(NewAccount{Email: "ops@corp.example"})

	_, errUnknown := s.login("ghost@corp.example", password)
	_, errWrong := s.login("ops@corp.example", "wrong-password-1")
	s.True(dErrors.HasCode(errUnknown, dErrors.CodeInvalidCredentials))
	s.True(dErrors.HasCode(errWrong, dErrors.CodeInvalidCredentials))
	s.Equal(errUnknown.Error(), errWrong.Error())
}

func (s *AccountsSuite) TestLockoutAfterThreshold() {
	a := s.register(NewAccount{Email: "ops@corp.example"})

	for range 2 {
		_, err := s.login("ops@corp.example", "wrong-password-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	}
	_, err := s.login("ops@corp.example", "wrong-password-1")
	s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))

	_, err = s.login("ops@corp.example", password)
	s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked), "correct password is refused while locked")
	s.Contains(s.actions(a.ID), string(audit.EventAccountLocked))

	later := requestcontext.WithTime(s.ctx, time.Now().Add(16*time.Minute))
	_, err = s.service.Login(later, local.LoginRequest{Identifier: "ops@corp.example", Secret: password})
	s.NoError(err)
}

func (s *AccountsSuite) TestTwoFactorStatus() {
	s.register(NewAccount{Email: "ops@corp.example", TwoFactorMethod: "email"})
	resp, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)
	s.Equal(local.TwoFactorStatus{Enabled: true, Method: "email", Contact: "ops@corp.example"}, resp.TwoFactor)
}

func (s *AccountsSuite) TestRefreshRotatesAndDetectsReplay() {
	s.register(NewAccount{Email: "ops@corp.example"})
	resp, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)

	rotated, err := s.service.Refresh(s.ctx, resp.Tokens.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(resp.Tokens.RefreshToken, rotated.RefreshToken)

	_, err = s.service.Refresh(s.ctx, resp.Tokens.RefreshToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))

	_, err = s.service.Refresh(s.ctx, rotated.RefreshToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired), "replay revokes the whole family")
}

func (s *AccountsSuite) TestRefreshExpired() {
	s.register(NewAccount{Email: "ops@corp.example"})
	resp, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.ctx, time.Now().Add(13*time.Hour))
	_, err = s.service.Refresh(later, resp.Tokens.RefreshToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))
}

func (s *AccountsSuite) TestPasswordResetFlow() {
	a := s.register(NewAccount{Email: "ops@corp.example"})
	old, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)

	s.Require().NoError(s.service.RequestPasswordReset(s.ctx, "ghost@corp.example"))
	_, sent := s.outbox.Next()
	s.False(sent)

	s.Require().NoError(s.service.RequestPasswordReset(s.ctx, "ops@corp.example"))
	msg, sent := s.outbox.Next()
	s.Require().True(sent)
	s.Equal(notify.TemplatePasswordReset, msg.Template)
	token := msg.Params["token"]

	err = s.service.ResetPassword(s.ctx, token, "weak")
	s.True(dErrors.HasCode(err, dErrors.CodeWeakSecret))

	s.Require().NoError(s.service.ResetPassword(s.ctx, token, "another-long-secret-7"))
	err = s.service.ResetPassword(s.ctx, token, "another-long-secret-8")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidResetToken))

	_, err = s.login("ops@corp.example", password)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	_, err = s.login("ops@corp.example", "another-long-secret-7")
	s.NoError(err)

	_, err = s.service.Refresh(s.ctx, old.Tokens.RefreshToken)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired), "reset revokes refresh tokens")
	s.Contains(s.actions(a.ID), string(audit.EventPasswordResetCompleted))
}

func (s *AccountsSuite) TestExpiredResetToken() {
	s.register(NewAccount{Email: "ops@corp.example"})
	s.Require().NoError(s.service.RequestPasswordReset(s.ctx, "ops@corp.example"))
	msg, _ := s.outbox.Next()

	later := requestcontext.WithTime(s.ctx, time.Now().Add(31*time.Minute))
	err := s.service.ResetPassword(later, msg.Params["token"], "another-long-secret-7")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidResetToken))
}

// enrolTOTP turns on authenticator codes for addr and returns the shared
// secret and backup codes.
func (s *AccountsSuite) enrolTOTP(addr string) (string, []string) {
	resp, err := s.login(addr, password)
	s.Require().NoError(err)
	access := resp.Tokens.AccessToken
	enrollment, err := s.service.BeginTOTPEnrollment(s.ctx, access)
	s.Require().NoError(err)
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	s.Require().NoError(err)
	backups, err := s.service.ConfirmTOTPEnrollment(s.ctx, access, code)
	s.Require().NoError(err)
	return enrollment.Secret, backups
}

func (s *AccountsSuite) stepUp(addr string) *local.StepUp {
	resp, err := s.login(addr, password)
	s.Require().NoError(err)
	s.Require().NotNil(resp.StepUp)
	return resp.StepUp
}

func (s *AccountsSuite) TestTOTPEnrollmentAndBackupCodes() {
	a := s.register(NewAccount{Email: "ops@corp.example"})
	resp, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)
	access := resp.Tokens.AccessToken

	_, err = s.service.ConfirmTOTPEnrollment(s.ctx, access, "123456")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	enrollment, err := s.service.BeginTOTPEnrollment(s.ctx, access)
	s.Require().NoError(err)
	s.Contains(enrollment.URI, "otpauth://totp/")

	_, err = s.service.ConfirmTOTPEnrollment(s.ctx, access, "000000x")
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch))

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	s.Require().NoError(err)
	backups, err := s.service.ConfirmTOTPEnrollment(s.ctx, access, code)
	s.Require().NoError(err)
	s.Len(backups, DefaultConfig().BackupCodeCount)
	s.Contains(s.actions(a.ID), string(audit.EventTwoFactorEnabled))

	again, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)
	s.Equal(local.TwoFactorStatus{Enabled: true, Method: "totp", BackupCodes: true}, again.TwoFactor)
	s.Require().NotNil(again.StepUp)

	bundle, err := s.service.VerifyStepUp(s.ctx, again.StepUp.Token, code)
	s.Require().NoError(err)
	s.NotEmpty(bundle.AccessToken)
	s.NotEmpty(bundle.RefreshToken)

	bundle, err = s.service.RedeemBackupCode(s.ctx, s.stepUp("ops@corp.example").Token, backups[0])
	s.Require().NoError(err)
	s.NotEmpty(bundle.AccessToken)
	s.Contains(s.actions(a.ID), string(audit.EventBackupCodeRedeemed))

	_, err = s.service.RedeemBackupCode(s.ctx, s.stepUp("ops@corp.example").Token, backups[0])
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch), "backup codes are single use")
}

// A login that still owes a second factor yields an opaque step-up handle
// and nothing that works as a session credential.
func (s *AccountsSuite) TestStepUpHandleIsNotASession() {
	s.register(NewAccount{Email: "ops@corp.example"})
	secret, _ := s.enrolTOTP("ops@corp.example")

	resp, err := s.login("ops@corp.example", password)
	s.Require().NoError(err)
	s.Require().NotNil(resp.StepUp)
	s.Empty(resp.Tokens.AccessToken)
	s.Empty(resp.Tokens.IDToken)
	s.Empty(resp.Tokens.RefreshToken)
	handle := resp.StepUp.Token

	_, err = s.service.BeginTOTPEnrollment(s.ctx, handle)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	code, err := totp.GenerateCode(secret, time.Now())
	s.Require().NoError(err)
	_, err = s.service.ConfirmTOTPEnrollment(s.ctx, handle, code)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = s.service.Refresh(s.ctx, handle)
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))

	bundle, err := s.service.VerifyStepUp(s.ctx, handle, code)
	s.Require().NoError(err)
	s.NotEmpty(bundle.AccessToken)

	_, err = s.service.VerifyStepUp(s.ctx, handle, code)
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorAbandoned), "a completed step-up cannot be replayed")
}

func (s *AccountsSuite) TestStepUpGuessesLockTheAccount() {
	a := s.register(NewAccount{Email: "ops@corp.example"})
	secret, _ := s.enrolTOTP("ops@corp.example")
	handle := s.stepUp("ops@corp.example").Token

	for range 2 {
		_, err := s.service.VerifyStepUp(s.ctx, handle, "000000x")
		s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch))
	}
	_, err := s.service.VerifyStepUp(s.ctx, handle, "000000x")
	s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	s.Contains(s.actions(a.ID), string(audit.EventAccountLocked))

	code, err := totp.GenerateCode(secret, time.Now())
	s.Require().NoError(err)
	_, err = s.service.VerifyStepUp(s.ctx, handle, code)
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorAbandoned))
	_, err = s.login("ops@corp.example", password)
	s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
}

func (s *AccountsSuite) TestStepUpFailuresSurviveReLogin() {
	s.register(NewAccount{Email: "ops@corp.example"})
	s.enrolTOTP("ops@corp.example")

	for range 2 {
		_, err := s.service.VerifyStepUp(s.ctx, s.stepUp("ops@corp.example").Token, "000000x")
		s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch))
	}
	_, err := s.service.RedeemBackupCode(s.ctx, s.stepUp("ops@corp.example").Token, "AAAAA-BBBBB")
	s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
}

func (s *AccountsSuite) TestStepUpExhaustsAttempts() {
	s.service.cfg.LockoutThreshold = 100
	s.service.cfg.StepUpAttempts = 2
	a := s.register(NewAccount{Email: "ops@corp.example"})
	secret, _ := s.enrolTOTP("ops@corp.example")
	handle := s.stepUp("ops@corp.example").Token

	_, err := s.service.VerifyStepUp(s.ctx, handle, "000000x")
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch))
	_, err = s.service.VerifyStepUp(s.ctx, handle, "000000x")
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorExhausted))
	s.Contains(s.actions(a.ID), string(audit.EventTwoFactorExhausted))

	code, err := totp.GenerateCode(secret, time.Now())
	s.Require().NoError(err)
	_, err = s.service.VerifyStepUp(s.ctx, handle, code)
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorAbandoned))
}

func (s *AccountsSuite) TestStepUpExpires() {
	s.register(NewAccount{Email: "ops@corp.example"})
	secret, _ := s.enrolTOTP("ops@corp.example")
	handle := s.stepUp("ops@corp.example").Token

	later := requestcontext.WithTime(s.ctx, time.Now().Add(DefaultConfig().StepUpTTL+time.Second))
	code, err := totp.GenerateCode(secret, time.Now().Add(DefaultConfig().StepUpTTL+time.Second))
	s.Require().NoError(err)
	_, err = s.service.VerifyStepUp(later, handle, code)
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorAbandoned))
}

func (s *AccountsSuite) TestOutOfBandStepUpDeliversCode() {
	s.register(NewAccount{Email: "ops@corp.example", TwoFactorMethod: "email"})
	handle := s.stepUp("ops@corp.example").Token

	msg, ok := s.outbox.Next()
	s.Require().True(ok)
	s.Equal(notify.ChannelEmail, msg.Channel)
	s.Equal(notify.TemplateTwoFactorCode, msg.Template)
	s.Equal("ops@corp.example", msg.To)
	s.Len(msg.Params["code"], StepUpCodeLength)

	bundle, err := s.service.VerifyStepUp(s.ctx, handle, " "+msg.Params["code"]+" ")
	s.Require().NoError(err)
	s.NotEmpty(bundle.AccessToken)
}

func (s *AccountsSuite) TestUndeliverableStepUpIsDropped() {
	s.register(NewAccount{Email: "ops@corp.example", TwoFactorMethod: "sms", TwoFactorContact: "+15550001234"})
	s.service.notifier = notify.NewRecorder(0)

	_, err := s.login("ops@corp.example", password)
	s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	s.Empty(s.store.stepUps)
}

func (s *AccountsSuite) TestOutOfBandDeliveryFailsClosedWithoutNotifier() {
	cfg := DefaultConfig()
	cfg.HashCost = bcrypt.MinCost
	store := NewInMemory()
	svc, err := New(store, jwttoken.NewJWTService("test-key", "backoffice-accounts", "backoffice"), WithConfig(cfg))
	s.Require().NoError(err)
	_, err = svc.Register(s.ctx, NewAccount{Email: "ops@corp.example", Password: password, TwoFactorMethod: "email"})
	s.Require().NoError(err)
	_, err = svc.Register(s.ctx, NewAccount{Email: "ana@corp.example", Password: password})
	s.Require().NoError(err)

	_, err = svc.Login(s.ctx, local.LoginRequest{Identifier: "ops@corp.example", Secret: password})
	s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	s.Empty(store.stepUps)

	for _, addr := range []string{"ops@corp.example", "ghost@corp.example"} {
		err = svc.RequestPasswordReset(s.ctx, addr)
		s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable), addr)
	}
	s.Empty(store.resets)

	resp, err := svc.Login(s.ctx, local.LoginRequest{Identifier: "ana@corp.example", Secret: password})
	s.Require().NoError(err)
	s.NotEmpty(resp.Tokens.AccessToken, "accounts without an out-of-band factor are unaffected")
}

func (s *AccountsSuite) TestConcurrentBackupRedemption() {
	s.service.cfg.LockoutThreshold = 100
	s.register(NewAccount{Email: "ops@corp.example"})
	_, backups := s.enrolTOTP("ops@corp.example")

	handles := make([]string, 16)
	for i := range handles {
		handles[i] = s.stepUp("ops@corp.example").Token
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, handle := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bundle, err := s.service.RedeemBackupCode(s.ctx, handle, backups[1]); err == nil && bundle != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *AccountsSuite) TestAccessTokenRequired() {
	_, err := s.service.BeginTOTPEnrollment(s.ctx, "garbage")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AccountsSuite) TestSeedIsIdempotent() {
	n, err := s.service.Seed(s.ctx, DemoAccounts(password))
	s.Require().NoError(err)
	s.Equal(5, n)
	n, err = s.service.Seed(s.ctx, DemoAccounts(password))
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *AccountsSuite) actions(userID string) []string {
	return s.audit.Actions(userID)
}
