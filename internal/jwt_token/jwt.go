package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "backoffice/pkg/domain-errors"
)

// Claims are the access-token claims issued by the local credential backend.
// Role carries the backend's raw vocabulary; normalization happens on the
// client side of the contract.
type Claims struct {
	Email          string `json:"email,omitempty"`
	Name           string `json:"name,omitempty"`
	Picture        string `json:"picture,omitempty"`
	Role           string `json:"role,omitempty"`
	AccountKind    string `json:"account_kind,omitempty"`
	OrganizationID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// Subject describes the account a token is issued for.
type Subject struct {
	UserID         string
	Email          string
	Name           string
	Picture        string
	Role           string
	AccountKind    string
	OrganizationID string
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// WithClock returns a copy of the service that reads time from now.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	c := *s
	c.now = now
	return &c
}

// GenerateAccessToken signs an HS256 access token for subject.
func (s *JWTService) GenerateAccessToken(subject Subject, expiresIn time.Duration) (string, time.Time, error) {
	return s.sign(subject, expiresIn)
}

// GenerateIDToken signs an identity token carrying the same profile claims.
// It is audience-bound to the issuer so it cannot be replayed as an access token.
func (s *JWTService) GenerateIDToken(subject Subject, expiresIn time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:   subject.Email,
		Name:    subject.Name,
		Picture: subject.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.issuer},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) sign(subject Subject, expiresIn time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(expiresIn).Truncate(time.Second)
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:          subject.Email,
		Name:           subject.Name,
		Picture:        subject.Picture,
		Role:           subject.Role,
		AccountKind:    subject.AccountKind,
		OrganizationID: subject.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signedToken, expiresAt, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeTokenExpired, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}

	return claims, nil
}

// ExtractUserIDFromToken validates the token and returns its subject.
func (s *JWTService) ExtractUserIDFromToken(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseExpiry reads the exp claim without verifying the signature. It is only
// used to decide local session freshness for tokens this process already
// holds; ok is false for opaque tokens or tokens without exp.
func ParseExpiry(tokenString string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
