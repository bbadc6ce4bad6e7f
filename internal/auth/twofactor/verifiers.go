package twofactor

import (
	"context"
	"strings"

	"backoffice/internal/auth/models"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/secrets"
)

// CodeLength is the digit count of out-of-band codes.
const CodeLength = 6

// StepUpCompleter exchanges a provider step-up handle and a code for the
// tokens the provider withheld at login. The provider counts attempts and
// consumes the handle on success. The local credential service implements it.
type StepUpCompleter interface {
	CompleteStepUp(ctx context.Context, stepUp, code string) (models.TokenSet, error)
	RedeemBackupCode(ctx context.Context, stepUp, code string) (models.TokenSet, error)
}

// digestVerifier compares against the SHA-256 of an out-of-band code.
type digestVerifier struct {
	digest string
}

func (v digestVerifier) Verify(_ context.Context, code string) (Verdict, error) {
	return Verdict{Valid: secrets.DigestEqual(strings.TrimSpace(code), v.digest)}, nil
}

// stepUpVerifier delegates the check to the provider holding the handle.
type stepUpVerifier struct {
	completer StepUpCompleter
	handle    string
	backup    bool
}

func (v stepUpVerifier) Verify(ctx context.Context, code string) (Verdict, error) {
	complete := v.completer.CompleteStepUp
	if v.backup {
		complete = v.completer.RedeemBackupCode
	}
	tokens, err := complete(ctx, v.handle, code)
	if dErrors.HasCode(err, dErrors.CodeTwoFactorMismatch) {
		return Verdict{}, nil
	}
	if err != nil {
		return Verdict{}, err
	}
	if tokens.AccessToken == "" {
		return Verdict{}, dErrors.New(dErrors.CodeProviderUnavailable, "provider returned no tokens")
	}
	return Verdict{Valid: true, Tokens: &tokens}, nil
}
