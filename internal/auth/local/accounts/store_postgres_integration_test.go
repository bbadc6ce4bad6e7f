//go:build integration

package accounts_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"backoffice/internal/auth/local/accounts"
	"backoffice/pkg/platform/sentinel"
	"backoffice/pkg/testutil/containers"
)

type PostgresAccountsSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *accounts.PostgresStore
}

func TestPostgresAccountsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAccountsSuite))
}

func (s *PostgresAccountsSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = accounts.NewPostgres(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresAccountsSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(),
		"backoffice_reset_tokens", "backoffice_refresh_tokens", "backoffice_accounts"))
}

func (s *PostgresAccountsSuite) newAccount(addr string) *accounts.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &accounts.Account{
		ID:               uuid.NewString(),
		Email:            addr,
		DisplayName:      "Ops",
		PasswordHash:     "$2a$04$hash",
		Role:             accounts.RoleStaff,
		AccountKind:      "internal",
		BackupCodeHashes: []string{"h1", "h2"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.Require().NoError(s.store.Create(context.Background(), a))
	return a
}

func (s *PostgresAccountsSuite) TestCreateFindAndConflict() {
	ctx := context.Background()
	a := s.newAccount("ops@corp.example")

	got, err := s.store.FindByEmail(ctx, "ops@corp.example")
	s.Require().NoError(err)
	s.Equal(a.ID, got.ID)
	s.Equal([]string{"h1", "h2"}, got.BackupCodeHashes)
	s.Nil(got.LockedUntil)

	err = s.store.Create(ctx, &accounts.Account{ID: uuid.NewString(), Email: "ops@corp.example", CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt})
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.store.FindByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresAccountsSuite) TestRecordFailureLocksAtThreshold() {
	ctx := context.Background()
	a := s.newAccount("ops@corp.example")
	until := time.Now().Add(15 * time.Minute)

	got, err := s.store.RecordFailure(ctx, a.ID, 2, until)
	s.Require().NoError(err)
	s.Equal(1, got.FailedAttempts)
	s.Nil(got.LockedUntil)

	got, err = s.store.RecordFailure(ctx, a.ID, 2, until)
	s.Require().NoError(err)
	s.Require().NotNil(got.LockedUntil)
	s.True(got.IsLockedAt(time.Now()))

	s.Require().NoError(s.store.ResetFailures(ctx, a.ID))
	got, err = s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Nil(got.LockedUntil)
}

func (s *PostgresAccountsSuite) TestConsumeBackupCodeOnceUnderConcurrency() {
	a := s.newAccount("ops@corp.example")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.store.ConsumeBackupCode(context.Background(), a.ID, "h1"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	got, err := s.store.FindByID(context.Background(), a.ID)
	s.Require().NoError(err)
	s.Equal([]string{"h2"}, got.BackupCodeHashes)
}

func (s *PostgresAccountsSuite) TestRefreshTokenConsumption() {
	ctx := context.Background()
	a := s.newAccount("ops@corp.example")
	now := time.Now()
	s.Require().NoError(s.store.SaveRefreshToken(ctx, accounts.RefreshToken{
		TokenHash: "rt", AccountID: a.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	rec, err := s.store.ConsumeRefreshToken(ctx, "rt", now)
	s.Require().NoError(err)
	s.Equal(a.ID, rec.AccountID)

	_, err = s.store.ConsumeRefreshToken(ctx, "rt", now)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	_, err = s.store.ConsumeRefreshToken(ctx, "nope", now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresAccountsSuite) TestResetTokenExpiry() {
	ctx := context.Background()
	a := s.newAccount("ops@corp.example")
	now := time.Now()
	s.Require().NoError(s.store.SaveResetToken(ctx, accounts.ResetToken{
		TokenHash: "reset", AccountID: a.ID, ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))

	_, err := s.store.ConsumeResetToken(ctx, "reset", now.Add(2*time.Minute))
	s.ErrorIs(err, sentinel.ErrExpired)
}
