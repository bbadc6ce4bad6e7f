package jwttoken

import (
	"backoffice/internal/platform/middleware"
)

// ToPrincipal projects validated access-token claims onto the caller the
// account handlers see. The raw role string is passed through; mapping it to
// the internal role model happens on the client side.
func ToPrincipal(claims *Claims) *middleware.Principal {
	p := &middleware.Principal{
		UserID:         claims.Subject,
		Email:          claims.Email,
		Role:           claims.Role,
		AccountKind:    claims.AccountKind,
		OrganizationID: claims.OrganizationID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

// JWTServiceAdapter satisfies middleware.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.Principal, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToPrincipal(claims), nil
}
