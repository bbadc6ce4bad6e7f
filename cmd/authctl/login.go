package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"backoffice/internal/auth/models"
	dErrors "backoffice/pkg/domain-errors"
)

const backupPrefix = "backup:"

func newLoginCmd(get func() *app) *cobra.Command {
	var identifier, secret string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an e-mail address and password",
		Long: `Sign in with an e-mail address and password.

If the account has two-factor authentication enabled you are prompted for
the code. Enter "backup:<code>" to redeem a backup code instead, or an empty
line to cancel.

Examples:
  authctl login --email ana@corp.example
  BACKOFFICE_PASSWORD=... authctl login --email ana@corp.example`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if identifier == "" {
				identifier = prompt(cmd, in, "E-mail: ")
			}
			if secret == "" {
				secret = os.Getenv("BACKOFFICE_PASSWORD")
			}
			if secret == "" {
				secret = prompt(cmd, in, "Password: ")
			}
			res := get().orch.Login(cmd.Context(), models.PasswordCredentials(identifier, secret))
			return completeLogin(cmd, get(), in, res)
		},
	}
	cmd.Flags().StringVar(&identifier, "email", "", "account e-mail address")
	cmd.Flags().StringVar(&secret, "password", "", "account password (or BACKOFFICE_PASSWORD)")
	cmd.AddCommand(newSSOCmd(get))
	return cmd
}

func newSSOCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sso",
		Short: "Sign in through the organization's identity provider",
		Long: `Sign in through the organization's identity provider.

Open the printed URL in a browser. authctl listens on the configured
redirect URL and finishes the login when the provider sends you back.

Examples:
  authctl login sso`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if a.sso == nil {
				return dErrors.New(dErrors.CodeProviderUnavailable, "federated login is not configured")
			}
			flow, err := a.sso.Begin()
			if err != nil {
				return err
			}
			printf(cmd, "Open this URL to continue:\n\n  %s\n\n", flow.URL)
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Auth.ChallengeTTL)
			defer cancel()
			if err := a.sso.AwaitCallback(ctx, flow); err != nil {
				return err
			}
			res := a.orch.Login(cmd.Context(), models.FederatedCredentials())
			return completeLogin(cmd, a, bufio.NewReader(cmd.InOrStdin()), res)
		},
	}
}

// completeLogin drives the step-up prompt until the login succeeds or fails.
func completeLogin(cmd *cobra.Command, a *app, in *bufio.Reader, res models.LoginResult) error {
	for res.Outcome == models.OutcomeTwoFactorRequired {
		c := res.Challenge
		if res.Reason != "" {
			printf(cmd, "Code rejected (%s). %d attempt(s) left.\n", res.Reason, c.AttemptsRemaining)
		} else {
			printf(cmd, "Two-factor code required (%s%s).\n", c.Method, contactSuffix(c.MaskedContact))
		}
		code := prompt(cmd, in, "Code: ")
		switch {
		case code == "":
			if err := a.orch.AbandonTwoFactor(cmd.Context(), c.ID); err != nil {
				return err
			}
			return dErrors.New(dErrors.CodeTwoFactorAbandoned, "login cancelled")
		case strings.HasPrefix(code, backupPrefix):
			res = a.orch.VerifyBackupCode(cmd.Context(), c.ID, strings.TrimPrefix(code, backupPrefix))
		default:
			res = a.orch.VerifyTwoFactor(cmd.Context(), c.ID, code)
		}
	}
	if res.Outcome == models.OutcomeRejected {
		return dErrors.New(res.Reason, "login rejected: "+string(res.Reason))
	}
	u := res.Session.User
	printf(cmd, "Signed in as %s (%s, %s).\n", u.DisplayName, u.Role, res.Session.Provider)
	return nil
}

func contactSuffix(masked string) string {
	if masked == "" {
		return ""
	}
	return " sent to " + masked
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) string {
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
