package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"backoffice/pkg/platform/sentinel"
)

const accountColumns = `id, email, display_name, password_hash, role, account_kind, organization_id,
	two_factor_enabled, two_factor_method, two_factor_contact, totp_secret, pending_totp_secret,
	backup_code_hashes, failed_attempts, locked_until, created_at, updated_at`

const schema = `
CREATE TABLE IF NOT EXISTS backoffice_accounts (
	id                  TEXT PRIMARY KEY,
	email               TEXT NOT NULL UNIQUE,
	display_name        TEXT NOT NULL,
	password_hash       TEXT NOT NULL,
	role                TEXT NOT NULL,
	account_kind        TEXT NOT NULL,
	organization_id     TEXT NOT NULL DEFAULT '',
	two_factor_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
	two_factor_method   TEXT NOT NULL DEFAULT '',
	two_factor_contact  TEXT NOT NULL DEFAULT '',
	totp_secret         TEXT NOT NULL DEFAULT '',
	pending_totp_secret TEXT NOT NULL DEFAULT '',
	backup_code_hashes  TEXT[] NOT NULL DEFAULT '{}',
	failed_attempts     INTEGER NOT NULL DEFAULT 0,
	locked_until        TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS backoffice_refresh_tokens (
	token_hash TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES backoffice_accounts(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL,
	used       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS backoffice_reset_tokens (
	token_hash TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES backoffice_accounts(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL,
	used       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS backoffice_step_ups (
	token_hash         TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL REFERENCES backoffice_accounts(id) ON DELETE CASCADE,
	code_hash          TEXT NOT NULL DEFAULT '',
	attempts_remaining INTEGER NOT NULL,
	expires_at         TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);`

// PostgresStore persists accounts in PostgreSQL. All read-modify-write
// operations are single conditional statements.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the account tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure accounts schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var lockedUntil sql.NullTime
	err := row.Scan(
		&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Role, &a.AccountKind, &a.OrganizationID,
		&a.TwoFactorEnabled, &a.TwoFactorMethod, &a.TwoFactorContact, &a.TOTPSecret, &a.PendingTOTPSecret,
		pq.Array(&a.BackupCodeHashes), &a.FailedAttempts, &lockedUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	return &a, nil
}

func (s *PostgresStore) findOne(ctx context.Context, op, where string, arg any) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM backoffice_accounts WHERE ` + where
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *Account) error {
	query := `INSERT INTO backoffice_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Role, a.AccountKind, a.OrganizationID,
		a.TwoFactorEnabled, a.TwoFactorMethod, a.TwoFactorContact, a.TOTPSecret, a.PendingTOTPSecret,
		pq.Array(nonNil(a.BackupCodeHashes)), a.FailedAttempts, a.LockedUntil, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("account %s: %w", a.Email, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findOne(ctx, "find account by email", "email = $1", email)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.findOne(ctx, "find account by id", "id = $1", id)
}

func (s *PostgresStore) Update(ctx context.Context, a *Account) error {
	query := `
		UPDATE backoffice_accounts SET
			email = $2, display_name = $3, password_hash = $4, role = $5, account_kind = $6,
			organization_id = $7, two_factor_enabled = $8, two_factor_method = $9,
			two_factor_contact = $10, totp_secret = $11, pending_totp_secret = $12,
			backup_code_hashes = $13, failed_attempts = $14, locked_until = $15, updated_at = $16
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Role, a.AccountKind,
		a.OrganizationID, a.TwoFactorEnabled, a.TwoFactorMethod,
		a.TwoFactorContact, a.TOTPSecret, a.PendingTOTPSecret,
		pq.Array(nonNil(a.BackupCodeHashes)), a.FailedAttempts, a.LockedUntil, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return expectOneRow(res, "update account")
}

func (s *PostgresStore) RecordFailure(ctx context.Context, id string, threshold int, lockedUntil time.Time) (*Account, error) {
	query := `
		UPDATE backoffice_accounts SET
			failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
			locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		WHERE id = $1
		RETURNING ` + accountColumns
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, id, threshold, lockedUntil))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ResetFailures(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backoffice_accounts SET failed_attempts = 0, locked_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return expectOneRow(res, "reset failures")
}

func (s *PostgresStore) ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error) {
	query := `
		UPDATE backoffice_accounts
		SET backup_code_hashes = array_remove(backup_code_hashes, $2)
		WHERE id = $1 AND $2 = ANY(backup_code_hashes)`
	res, err := s.db.ExecContext(ctx, query, id, codeHash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume backup code rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresStore) SaveRefreshToken(ctx context.Context, t RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backoffice_refresh_tokens (token_hash, account_id, expires_at, used, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.TokenHash, t.AccountID, t.ExpiresAt, t.Used, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error) {
	t, err := consumeToken(ctx, s.db, "backoffice_refresh_tokens", tokenHash, now)
	if err != nil {
		return nil, err
	}
	return &RefreshToken{TokenHash: t.TokenHash, AccountID: t.AccountID, ExpiresAt: t.ExpiresAt, Used: true, CreatedAt: t.CreatedAt}, nil
}

func (s *PostgresStore) RevokeRefreshTokens(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backoffice_refresh_tokens WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveResetToken(ctx context.Context, t ResetToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backoffice_reset_tokens (token_hash, account_id, expires_at, used, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.TokenHash, t.AccountID, t.ExpiresAt, t.Used, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*ResetToken, error) {
	t, err := consumeToken(ctx, s.db, "backoffice_reset_tokens", tokenHash, now)
	if err != nil {
		return nil, err
	}
	return &ResetToken{TokenHash: t.TokenHash, AccountID: t.AccountID, ExpiresAt: t.ExpiresAt, Used: true, CreatedAt: t.CreatedAt}, nil
}

func (s *PostgresStore) SaveStepUp(ctx context.Context, step StepUp) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backoffice_step_ups (token_hash, account_id, code_hash, attempts_remaining, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		step.TokenHash, step.AccountID, step.CodeHash, step.AttemptsRemaining, step.ExpiresAt, step.CreatedAt)
	if err != nil {
		return fmt.Errorf("save step-up: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindStepUp(ctx context.Context, tokenHash string, now time.Time) (*StepUp, error) {
	var step StepUp
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, account_id, code_hash, attempts_remaining, expires_at, created_at
		FROM backoffice_step_ups WHERE token_hash = $1`, tokenHash,
	).Scan(&step.TokenHash, &step.AccountID, &step.CodeHash, &step.AttemptsRemaining, &step.ExpiresAt, &step.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step-up not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find step-up: %w", err)
	}
	if !now.Before(step.ExpiresAt) {
		return nil, fmt.Errorf("step-up expired: %w", sentinel.ErrExpired)
	}
	return &step, nil
}

func (s *PostgresStore) RecordStepUpFailure(ctx context.Context, tokenHash string) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		UPDATE backoffice_step_ups SET attempts_remaining = attempts_remaining - 1
		WHERE token_hash = $1
		RETURNING attempts_remaining`, tokenHash,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("step-up not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("record step-up failure: %w", err)
	}
	if remaining > 0 {
		return remaining, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backoffice_step_ups WHERE token_hash = $1`, tokenHash); err != nil {
		return 0, fmt.Errorf("drop exhausted step-up: %w", err)
	}
	return 0, nil
}

func (s *PostgresStore) ConsumeStepUp(ctx context.Context, tokenHash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backoffice_step_ups WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("consume step-up: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume step-up rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("step-up not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

type tokenRow struct {
	TokenHash string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// consumeToken marks a token used with a conditional update; on a miss it
// reads the row to report why.
func consumeToken(ctx context.Context, db *sql.DB, table, tokenHash string, now time.Time) (*tokenRow, error) {
	var t tokenRow
	err := db.QueryRowContext(ctx, `
		UPDATE `+table+` SET used = TRUE
		WHERE token_hash = $1 AND used = FALSE AND expires_at > $2
		RETURNING token_hash, account_id, expires_at, created_at`, tokenHash, now,
	).Scan(&t.TokenHash, &t.AccountID, &t.ExpiresAt, &t.CreatedAt)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	var used bool
	err = db.QueryRowContext(ctx, `SELECT used FROM `+table+` WHERE token_hash = $1`, tokenHash).Scan(&used)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("consume token lookup: %w", err)
	case used:
		return nil, fmt.Errorf("token already used: %w", sentinel.ErrAlreadyUsed)
	default:
		return nil, fmt.Errorf("token expired: %w", sentinel.ErrExpired)
	}
}

func expectOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
