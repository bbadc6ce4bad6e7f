// Package accounts is the in-process credential backend: password
// verification with lockout, token issuance and rotation, password reset and
// authenticator enrolment for locally-managed accounts.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"backoffice/internal/auth/local"
	jwttoken "backoffice/internal/jwt_token"
	"backoffice/internal/notify"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/email"
	"backoffice/pkg/platform/audit"
	"backoffice/pkg/platform/secrets"
	"backoffice/pkg/platform/sentinel"
	"backoffice/pkg/requestcontext"
)

const (
	RoleAdmin    = "ROLE_ADMIN"
	RoleStaff    = "ROLE_STAFF"
	RoleSupport  = "ROLE_SUPPORT"
	RoleCustomer = "ROLE_CUSTOMER"
	RoleUser     = "ROLE_USER"
)

// Config holds backend policy.
type Config struct {
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ResetTokenTTL    time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	TOTPIssuer       string
	BackupCodeCount  int
	HashCost         int
	StepUpTTL        time.Duration
	StepUpAttempts   int
}

func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  12 * time.Hour,
		ResetTokenTTL:    30 * time.Minute,
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		TOTPIssuer:       "Backoffice",
		BackupCodeCount:  10,
		StepUpTTL:        5 * time.Minute,
		StepUpAttempts:   5,
	}
}

// Service implements local.Backend.
type Service struct {
	store    Store
	tokens   *jwttoken.JWTService
	notifier notify.Notifier
	auditor  audit.Emitter
	logger   *slog.Logger
	cfg      Config

	// dummyHash keeps unknown-identifier logins as slow as wrong-password ones.
	dummyHash string
}

var _ local.Backend = (*Service)(nil)

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = e
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(store Store, tokens *jwttoken.JWTService, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	s := &Service{
		store:  store,
		tokens: tokens,
		logger: slog.Default(),
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.Unavailable{}
	}
	if s.cfg.StepUpTTL <= 0 {
		s.cfg.StepUpTTL = DefaultConfig().StepUpTTL
	}
	if s.cfg.StepUpAttempts <= 0 {
		s.cfg.StepUpAttempts = DefaultConfig().StepUpAttempts
	}
	hash, err := s.hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.dummyHash = hash
	return s, nil
}

func (s *Service) hash(secret string) (string, error) {
	if s.cfg.HashCost > 0 {
		return secrets.HashWithCost(secret, s.cfg.HashCost)
	}
	return secrets.Hash(secret)
}

// StepUpCodeLength is the digit count of out-of-band two-factor codes.
const StepUpCodeLength = 6

func invalidCredentials() error {
	return dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
}

// Register creates an account. It is used by seeding and administration.
func (s *Service) Register(ctx context.Context, in NewAccount) (*Account, error) {
	addr := strings.ToLower(strings.TrimSpace(in.Email))
	if !govalidator.IsEmail(addr) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "email is invalid")
	}
	if err := secrets.CheckStrength(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	account := &Account{
		ID:             uuid.NewString(),
		Email:          addr,
		DisplayName:    strings.TrimSpace(in.DisplayName),
		PasswordHash:   hash,
		Role:           in.Role,
		AccountKind:    in.AccountKind,
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if account.DisplayName == "" {
		account.DisplayName = email.DisplayNameFromEmail(addr)
	}
	if account.Role == "" {
		account.Role = RoleUser
	}
	if account.AccountKind == "" {
		account.AccountKind = "internal"
	}
	if account.AccountKind == "external" && account.OrganizationID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "external accounts require an organization")
	}
	switch in.TwoFactorMethod {
	case "":
	case "email", "sms":
		account.TwoFactorEnabled = true
		account.TwoFactorMethod = in.TwoFactorMethod
		account.TwoFactorContact = in.TwoFactorContact
		if account.TwoFactorContact == "" && in.TwoFactorMethod == "email" {
			account.TwoFactorContact = addr
		}
		if account.TwoFactorContact == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "sms two-factor requires a contact number")
		}
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported two-factor method")
	}

	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "account already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	return account, nil
}

// Login verifies the password, applying the failure lockout.
func (s *Service) Login(ctx context.Context, req local.LoginRequest) (*local.LoginResponse, error) {
	addr := strings.ToLower(strings.TrimSpace(req.Identifier))
	account, err := s.store.FindByEmail(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		_ = secrets.Verify(req.Secret, s.dummyHash)
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	now := requestcontext.Now(ctx)
	if account.IsLockedAt(now) {
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked")
	}

	if err := secrets.Verify(req.Secret, account.PasswordHash); err != nil {
		updated, ferr := s.store.RecordFailure(ctx, account.ID, s.cfg.LockoutThreshold, now.Add(s.cfg.LockoutDuration))
		if ferr != nil {
			return nil, dErrors.Wrap(ferr, dErrors.CodeInternal, "failed to record login failure")
		}
		if updated.IsLockedAt(now) {
			audit.Log(ctx, s.logger, s.auditor, audit.Event{
				Action: string(audit.EventAccountLocked),
				UserID: account.ID,
				Reason: "too_many_failed_logins",
			})
			return nil, dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked")
		}
		return nil, invalidCredentials()
	}

	// Failures reset only once every factor has passed, so a known password
	// does not buy fresh second-factor guesses.
	if account.TwoFactorEnabled {
		step, err := s.openStepUp(ctx, account, now)
		if err != nil {
			return nil, err
		}
		return &local.LoginResponse{
			StepUp:    step,
			Profile:   profileOf(account),
			TwoFactor: twoFactorOf(account),
		}, nil
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.store.ResetFailures(ctx, account.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures", "user_id", account.ID, "error", err)
		}
	}

	bundle, err := s.issue(ctx, account, now)
	if err != nil {
		return nil, err
	}
	return &local.LoginResponse{
		Tokens:    *bundle,
		Profile:   profileOf(account),
		TwoFactor: twoFactorOf(account),
	}, nil
}

// openStepUp stores a pending second-factor check and, for out-of-band
// methods, delivers the code. No token is issued until the step-up is
// completed.
func (s *Service) openStepUp(ctx context.Context, account *Account, now time.Time) (*local.StepUp, error) {
	token, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate step-up handle")
	}
	step := StepUp{
		TokenHash:         secrets.Digest(token),
		AccountID:         account.ID,
		AttemptsRemaining: s.cfg.StepUpAttempts,
		ExpiresAt:         now.Add(s.cfg.StepUpTTL),
		CreatedAt:         now,
	}

	var msg *notify.Message
	switch account.TwoFactorMethod {
	case "email", "sms":
		code, err := secrets.NumericCode(StepUpCodeLength)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate two-factor code")
		}
		step.CodeHash = secrets.Digest(code)
		channel := notify.ChannelEmail
		if account.TwoFactorMethod == "sms" {
			channel = notify.ChannelSMS
		}
		msg = &notify.Message{
			Channel:  channel,
			To:       account.TwoFactorContact,
			Template: notify.TemplateTwoFactorCode,
			Params:   map[string]string{"code": code},
		}
	case "totp":
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "account has an unknown two-factor method")
	}

	if err := s.store.SaveStepUp(ctx, step); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store step-up")
	}
	if msg != nil {
		if err := s.notifier.Send(ctx, *msg); err != nil {
			if cerr := s.store.ConsumeStepUp(ctx, step.TokenHash); cerr != nil {
				s.logger.WarnContext(ctx, "failed to drop undeliverable step-up", "user_id", account.ID, "error", cerr)
			}
			s.logger.WarnContext(ctx, "failed to deliver two-factor code", "user_id", account.ID, "method", account.TwoFactorMethod, "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "could not deliver two-factor code")
		}
	}
	return &local.StepUp{Token: token, ExpiresAt: step.ExpiresAt}, nil
}

// Refresh rotates a refresh token. Reuse of a consumed token revokes every
// refresh token of the account.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*local.TokenBundle, error) {
	now := requestcontext.Now(ctx)
	record, err := s.store.ConsumeRefreshToken(ctx, secrets.Digest(refreshToken), now)
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		if record != nil {
			if rerr := s.store.RevokeRefreshTokens(ctx, record.AccountID); rerr != nil {
				s.logger.WarnContext(ctx, "failed to revoke refresh tokens after replay", "error", rerr)
			}
			s.logger.WarnContext(ctx, "refresh token replay detected", "user_id", record.AccountID)
		}
		return nil, dErrors.New(dErrors.CodeTokenExpired, "refresh token is invalid or expired")
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		return nil, dErrors.New(dErrors.CodeTokenExpired, "refresh token is invalid or expired")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume refresh token")
	}

	account, err := s.store.FindByID(ctx, record.AccountID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeTokenExpired, "refresh token is invalid or expired")
	}
	if account.IsLockedAt(now) {
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked")
	}
	return s.issue(ctx, account, now)
}

func (s *Service) issue(ctx context.Context, account *Account, now time.Time) (*local.TokenBundle, error) {
	subject := jwttoken.Subject{
		UserID:         account.ID,
		Email:          account.Email,
		Name:           account.DisplayName,
		Role:           account.Role,
		AccountKind:    account.AccountKind,
		OrganizationID: account.OrganizationID,
	}
	access, expiresAt, err := s.tokens.GenerateAccessToken(subject, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	idToken, err := s.tokens.GenerateIDToken(subject, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign id token")
	}
	refresh, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}
	err = s.store.SaveRefreshToken(ctx, RefreshToken{
		TokenHash: secrets.Digest(refresh),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store refresh token")
	}
	return &local.TokenBundle{
		AccessToken:  access,
		IDToken:      idToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// RequestPasswordReset sends a reset token to known accounts. Unknown
// identifiers succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) error {
	// Checked before the lookup so known and unknown addresses fail alike.
	if !notify.Deliverable(s.notifier) {
		return dErrors.New(dErrors.CodeProviderUnavailable, "password reset delivery is not configured")
	}
	addr := strings.ToLower(strings.TrimSpace(identifier))
	account, err := s.store.FindByEmail(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	token, err := secrets.Generate()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate reset token")
	}
	now := requestcontext.Now(ctx)
	err = s.store.SaveResetToken(ctx, ResetToken{
		TokenHash: secrets.Digest(token),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store reset token")
	}
	err = s.notifier.Send(ctx, notify.Message{
		Channel:  notify.ChannelEmail,
		To:       account.Email,
		Template: notify.TemplatePasswordReset,
		Params:   map[string]string{"token": token},
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "failed to deliver reset token")
	}
	audit.Log(ctx, s.logger, s.auditor, audit.Event{
		Action: string(audit.EventPasswordResetRequested),
		UserID: account.ID,
	})
	return nil
}

// ResetPassword consumes a reset token, sets the new password, clears any
// lockout and revokes outstanding refresh tokens.
func (s *Service) ResetPassword(ctx context.Context, token, newSecret string) error {
	if err := secrets.CheckStrength(newSecret); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	record, err := s.store.ConsumeResetToken(ctx, secrets.Digest(token), now)
	switch {
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired), errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeInvalidResetToken, "reset token is invalid or expired")
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume reset token")
	}

	account, err := s.store.FindByID(ctx, record.AccountID)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidResetToken, "reset token is invalid or expired")
	}
	hash, err := s.hash(newSecret)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	account.PasswordHash = hash
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.UpdatedAt = now
	if err := s.store.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	if err := s.store.RevokeRefreshTokens(ctx, account.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke refresh tokens after reset", "user_id", account.ID, "error", err)
	}
	audit.Log(ctx, s.logger, s.auditor, audit.Event{
		Action: string(audit.EventPasswordResetCompleted),
		UserID: account.ID,
	})
	return nil
}

func (s *Service) accountFor(ctx context.Context, accessToken string) (*Account, error) {
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, err
	}
	account, err := s.store.FindByID(ctx, claims.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

// BeginTOTPEnrollment generates a pending authenticator secret.
func (s *Service) BeginTOTPEnrollment(ctx context.Context, accessToken string) (*local.TOTPEnrollment, error) {
	account, err := s.accountFor(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.TOTPIssuer,
		AccountName: account.Email,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate authenticator secret")
	}
	account.PendingTOTPSecret = key.Secret()
	account.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store authenticator secret")
	}
	return &local.TOTPEnrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// ConfirmTOTPEnrollment activates the pending secret once a valid code is
// supplied and issues a fresh set of backup codes.
func (s *Service) ConfirmTOTPEnrollment(ctx context.Context, accessToken, code string) ([]string, error) {
	account, err := s.accountFor(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if account.PendingTOTPSecret == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no authenticator enrolment in progress")
	}
	now := requestcontext.Now(ctx)
	if !validTOTP(code, account.PendingTOTPSecret, now) {
		return nil, dErrors.New(dErrors.CodeTwoFactorMismatch, "code does not match")
	}

	codes := make([]string, 0, s.cfg.BackupCodeCount)
	hashes := make([]string, 0, s.cfg.BackupCodeCount)
	for range s.cfg.BackupCodeCount {
		c, err := secrets.BackupCode()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup codes")
		}
		codes = append(codes, c)
		hashes = append(hashes, secrets.Digest(secrets.NormalizeBackupCode(c)))
	}

	account.TOTPSecret = account.PendingTOTPSecret
	account.PendingTOTPSecret = ""
	account.TwoFactorEnabled = true
	account.TwoFactorMethod = "totp"
	account.BackupCodeHashes = hashes
	account.UpdatedAt = now
	if err := s.store.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enable two-factor")
	}
	audit.Log(ctx, s.logger, s.auditor, audit.Event{
		Action: string(audit.EventTwoFactorEnabled),
		UserID: account.ID,
	})
	return codes, nil
}

// VerifyStepUp checks the account's second factor against a step-up
// handle. Wrong codes count against both the step-up and the account
// lockout. A correct code consumes the handle and issues the tokens.
func (s *Service) VerifyStepUp(ctx context.Context, stepUpToken, code string) (*local.TokenBundle, error) {
	return s.completeStepUp(ctx, stepUpToken, func(step *StepUp, account *Account, now time.Time) (bool, error) {
		switch account.TwoFactorMethod {
		case "totp":
			return account.TOTPSecret != "" && validTOTP(code, account.TOTPSecret, now), nil
		case "email", "sms":
			return step.CodeHash != "" && secrets.DigestEqual(strings.TrimSpace(code), step.CodeHash), nil
		}
		return false, nil
	})
}

// RedeemBackupCode completes a step-up with a backup code. The store removes
// the code atomically, so concurrent redemptions of one code succeed at most
// once.
func (s *Service) RedeemBackupCode(ctx context.Context, stepUpToken, code string) (*local.TokenBundle, error) {
	return s.completeStepUp(ctx, stepUpToken, func(_ *StepUp, account *Account, _ time.Time) (bool, error) {
		ok, err := s.store.ConsumeBackupCode(ctx, account.ID, secrets.Digest(secrets.NormalizeBackupCode(code)))
		if err != nil {
			return false, err
		}
		if ok {
			audit.Log(ctx, s.logger, s.auditor, audit.Event{
				Action: string(audit.EventBackupCodeRedeemed),
				UserID: account.ID,
			})
		}
		return ok, nil
	})
}

type stepUpCheck func(step *StepUp, account *Account, now time.Time) (bool, error)

func stepUpEnded() error {
	return dErrors.New(dErrors.CodeTwoFactorAbandoned, "step-up is invalid or expired")
}

func (s *Service) completeStepUp(ctx context.Context, stepUpToken string, check stepUpCheck) (*local.TokenBundle, error) {
	now := requestcontext.Now(ctx)
	step, err := s.store.FindStepUp(ctx, secrets.Digest(stepUpToken), now)
	switch {
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		return nil, stepUpEnded()
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load step-up")
	}
	account, err := s.store.FindByID(ctx, step.AccountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, stepUpEnded()
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if account.IsLockedAt(now) {
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked")
	}

	ok, err := check(step, account, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check two-factor code")
	}
	if !ok {
		return nil, s.stepUpFailure(ctx, step, now)
	}

	if err := s.store.ConsumeStepUp(ctx, step.TokenHash); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, stepUpEnded()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume step-up")
	}
	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.store.ResetFailures(ctx, account.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures", "user_id", account.ID, "error", err)
		}
	}
	audit.Log(ctx, s.logger, s.auditor, audit.Event{
		Action: string(audit.EventTwoFactorVerified),
		UserID: account.ID,
	})
	return s.issue(ctx, account, now)
}

// stepUpFailure charges a wrong code to the step-up and to the account's
// lockout counter.
func (s *Service) stepUpFailure(ctx context.Context, step *StepUp, now time.Time) error {
	remaining, err := s.store.RecordStepUpFailure(ctx, step.TokenHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return stepUpEnded()
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record two-factor failure")
	}
	updated, err := s.store.RecordFailure(ctx, step.AccountID, s.cfg.LockoutThreshold, now.Add(s.cfg.LockoutDuration))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
	}
	audit.Log(ctx, s.logger, s.auditor, audit.Event{
		Action: string(audit.EventTwoFactorFailed),
		UserID: step.AccountID,
	})

	locked := updated.IsLockedAt(now)
	if locked {
		audit.Log(ctx, s.logger, s.auditor, audit.Event{
			Action: string(audit.EventAccountLocked),
			UserID: step.AccountID,
			Reason: "too_many_failed_two_factor_codes",
		})
	}
	switch {
	case remaining <= 0:
		audit.Log(ctx, s.logger, s.auditor, audit.Event{
			Action: string(audit.EventTwoFactorExhausted),
			UserID: step.AccountID,
		})
		return dErrors.New(dErrors.CodeTwoFactorExhausted, "too many failed attempts")
	case locked:
		if err := s.store.ConsumeStepUp(ctx, step.TokenHash); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to drop step-up of locked account", "user_id", step.AccountID, "error", err)
		}
		return dErrors.New(dErrors.CodeAccountLocked, "account is temporarily locked")
	}
	return dErrors.New(dErrors.CodeTwoFactorMismatch, "code does not match")
}

func validTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func profileOf(a *Account) local.Profile {
	return local.Profile{
		ID:             a.ID,
		Email:          a.Email,
		DisplayName:    a.DisplayName,
		Role:           a.Role,
		AccountKind:    a.AccountKind,
		OrganizationID: a.OrganizationID,
	}
}

func twoFactorOf(a *Account) local.TwoFactorStatus {
	if !a.TwoFactorEnabled {
		return local.TwoFactorStatus{}
	}
	return local.TwoFactorStatus{
		Enabled:     true,
		Method:      a.TwoFactorMethod,
		Contact:     a.TwoFactorContact,
		BackupCodes: len(a.BackupCodeHashes) > 0,
	}
}
