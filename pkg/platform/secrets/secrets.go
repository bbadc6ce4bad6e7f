// Package secrets generates, hashes and compares credential material:
// passwords (bcrypt), high-entropy tokens (SHA-256 digests) and short
// human-typed codes.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	dErrors "backoffice/pkg/domain-errors"
)

// MinSecretLength is the shortest password accepted on reset.
const MinSecretLength = 12

// Generate creates a 32-byte random secret encoded as base64url. Used for
// refresh tokens and password reset tokens.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of a password.
func Hash(secret string) (string, error) {
	return HashWithCost(secret, bcrypt.DefaultCost)
}

// HashWithCost is Hash with an explicit bcrypt cost (tests use bcrypt.MinCost).
func HashWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a password against a bcrypt hash.
func Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidCredentials, "invalid secret")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}

// CheckStrength rejects passwords that are too short or use a single
// character class.
func CheckStrength(secret string) error {
	if len([]rune(secret)) < MinSecretLength {
		return dErrors.New(dErrors.CodeWeakSecret, fmt.Sprintf("secret must be at least %d characters", MinSecretLength))
	}
	var letter, digit, other bool
	for _, r := range secret {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	if !letter || (!digit && !other) {
		return dErrors.New(dErrors.CodeWeakSecret, "secret must mix letters with digits or symbols")
	}
	return nil
}

// Digest returns the hex SHA-256 of a high-entropy value. Suitable for
// storing tokens and codes that are only ever compared, never recovered.
func Digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// DigestEqual compares a plaintext value against a stored digest in
// constant time.
func DigestEqual(value, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(value)), []byte(digest)) == 1
}

// NumericCode returns a uniformly random decimal code of the given length.
func NumericCode(digits int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("could not generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

var backupEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// BackupCode returns a 10-character single-use recovery code formatted as
// XXXXX-XXXXX.
func BackupCode() (string, error) {
	buf := make([]byte, 7)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate backup code: %w", err)
	}
	raw := backupEncoding.EncodeToString(buf)[:10]
	return raw[:5] + "-" + raw[5:], nil
}

// NormalizeBackupCode strips separators and whitespace and upper-cases the
// input so users can type codes loosely.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
