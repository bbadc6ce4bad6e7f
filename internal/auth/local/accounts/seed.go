package accounts

import (
	"context"

	dErrors "backoffice/pkg/domain-errors"
)

// DemoAccounts are development fixtures, one per role vocabulary entry plus
// a two-factor account and an external partner.
func DemoAccounts(password string) []NewAccount {
	return []NewAccount{
		{Email: "admin@backoffice.local", Password: password, Role: RoleAdmin},
		{Email: "staff@backoffice.local", Password: password, Role: RoleStaff},
		{Email: "support@backoffice.local", Password: password, Role: RoleSupport, TwoFactorMethod: "email"},
		{Email: "viewer@backoffice.local", Password: password, Role: RoleUser},
		{
			Email:          "partner@acme.example",
			Password:       password,
			Role:           RoleCustomer,
			AccountKind:    "external",
			OrganizationID: "org-acme",
		},
	}
}

// Seed registers accounts, skipping ones that already exist. It returns the
// number created.
func (s *Service) Seed(ctx context.Context, accounts []NewAccount) (int, error) {
	created := 0
	for _, in := range accounts {
		_, err := s.Register(ctx, in)
		switch {
		case dErrors.HasCode(err, dErrors.CodeConflict):
			continue
		case err != nil:
			return created, err
		}
		created++
	}
	return created, nil
}
