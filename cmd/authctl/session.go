package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/requestcontext"
)

func newStatusCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			user, ok := a.orch.CurrentUser(cmd.Context())
			if !ok {
				printf(cmd, "Not signed in.\nUse 'authctl login' to authenticate.\n")
				return nil
			}
			printf(cmd, "Signed in\n")
			printf(cmd, "User:    %s <%s>\n", user.DisplayName, user.Email)
			printf(cmd, "Role:    %s\n", user.Role)
			printf(cmd, "Account: %s\n", user.AccountKind)
			if user.OrganizationID != "" {
				printf(cmd, "Org:     %s\n", user.OrganizationID)
			}
			if exp, ok := a.orch.ExpiresAt(cmd.Context()); ok {
				left := exp.Sub(requestcontext.Now(cmd.Context())).Round(time.Second)
				printf(cmd, "Expires: %s (in %s)\n", exp.Local().Format(time.RFC1123), left)
			}
			return nil
		},
	}
}

func newWhoamiCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, ok := get().orch.CurrentUser(cmd.Context())
			if !ok {
				return dErrors.New(dErrors.CodeUnauthorized, "not signed in")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{
				"id":              user.ID,
				"email":           user.Email,
				"display_name":    user.DisplayName,
				"role":            string(user.Role),
				"account_kind":    string(user.AccountKind),
				"organization_id": user.OrganizationID,
			})
		},
	}
}

func newTokenCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it if it is about to expire",
		Long: `Print a valid access token, refreshing it if it is about to expire.

Examples:
  curl -H "Authorization: Bearer $(authctl token)" https://backoffice.example/api`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, ok := get().orch.AccessToken(cmd.Context())
			if !ok {
				return dErrors.New(dErrors.CodeUnauthorized, "not signed in")
			}
			printf(cmd, "%s\n", token)
			return nil
		},
	}
}

func newRefreshCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the session's tokens now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if err := a.orch.Refresh(cmd.Context()); err != nil {
				return err
			}
			if exp, ok := a.orch.ExpiresAt(cmd.Context()); ok {
				printf(cmd, "Session renewed until %s.\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newLogoutCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Long: `End the session.

The local session is always removed. For identity-provider sessions the
provider is asked to end its session too; a slow or failing provider does
not keep you signed in.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := get().orch.Logout(cmd.Context()); err != nil {
				return err
			}
			printf(cmd, "Signed out.\n")
			return nil
		},
	}
}
