package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried in issued tokens. TenantSlug is the claim consumed by the
// tenant middleware when no tenant header is present.
type Claims struct {
	Email      string `json:"email"`
	FullName   string `json:"name,omitempty"`
	IsAdmin    bool   `json:"is_admin"`
	TenantSlug string `json:"tenant_slug,omitempty"`
	jwt.RegisteredClaims
}

// Credentials converts verified claims into UserCredentials.
func (c *Claims) Credentials() (*UserCredentials, error) {
	if c.Subject == "" {
		return nil, errors.New("missing subject claim")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject claim: %w", err)
	}
	return &UserCredentials{
		ID:         id,
		Email:      c.Email,
		FullName:   c.FullName,
		IsAdmin:    c.IsAdmin,
		TenantSlug: c.TenantSlug,
	}, nil
}

// Issuer signs access tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. TTL defaults to one hour when zero.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	if len(secret) == 0 {
		panic("auth.NewIssuer: secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue mints a signed token for the given principal.
func (i *Issuer) Issue(creds UserCredentials) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:      creds.Email,
		FullName:   creds.FullName,
		IsAdmin:    creds.IsAdmin,
		TenantSlug: creds.TenantSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   creds.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verifier validates tokens issued by Issuer.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret []byte, issuer string) *Verifier {
	if len(secret) == 0 {
		panic("auth.NewVerifier: secret is required")
	}
	return &Verifier{secret: secret, issuer: issuer}
}

// Verify parses and validates a signed token, returning its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
