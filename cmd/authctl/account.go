package main

import (
	"bufio"

	"github.com/spf13/cobra"
)

func newPasswordCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset a forgotten password",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset-request <email>",
		Short: "Send a reset link to the account's e-mail address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().orch.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
				return err
			}
			printf(cmd, "If the account exists, a reset message is on its way.\n")
			return nil
		},
	})

	var token, secret string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with a reset token",
		Long: `Set a new password with a reset token.

Examples:
  authctl password reset --token <token-from-email>`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if token == "" {
				token = prompt(cmd, in, "Reset token: ")
			}
			if secret == "" {
				secret = prompt(cmd, in, "New password: ")
			}
			if err := get().orch.ResetPassword(cmd.Context(), token, secret); err != nil {
				return err
			}
			printf(cmd, "Password updated. Sign in with 'authctl login'.\n")
			return nil
		},
	}
	reset.Flags().StringVar(&token, "token", "", "reset token")
	reset.Flags().StringVar(&secret, "new-password", "", "new password")
	cmd.AddCommand(reset)
	return cmd
}

func newTwoFactorCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage authenticator-app two-factor authentication",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Start authenticator enrolment for the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setup, err := get().orch.SetupTwoFactor(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd, "Add this account to your authenticator app:\n\n  %s\n\n", setup.QRPayload)
			printf(cmd, "Or enter the key manually: %s\n", setup.SharedSecret)
			printf(cmd, "Then run 'authctl 2fa confirm <code>'.\n")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "confirm <code>",
		Short: "Confirm enrolment with a code from the authenticator app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, err := get().orch.ConfirmTwoFactorSetup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printf(cmd, "Two-factor authentication is on. Store these backup codes safely:\n\n")
			for _, c := range codes {
				printf(cmd, "  %s\n", c)
			}
			return nil
		},
	})
	return cmd
}
