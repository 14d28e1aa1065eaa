// Package auth checks the bearer tokens the user service issues for the
// order API. Issue exists for local runs and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/pkg/middleware"
)

// Issuer is the iss claim of access tokens accepted by the order API.
const Issuer = "user-service"

// clockSkew absorbs drift between the user service and this one.
const clockSkew = 30 * time.Second

var _ middleware.TokenValidator = (*Tokens)(nil)

// Claims is the access token payload. Older tokens carry the user only in
// sub, newer ones also in user_id.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the caller the token speaks for.
func (c *Claims) Actor() domain.Actor {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return domain.Actor{UserID: id, Role: c.Role}
}

// Tokens signs and verifies HS256 access tokens with one shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens returns a Tokens whose issued tokens live for ttl.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for user acting with role.
func (t *Tokens) Issue(user domain.UserSummary, role string) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, t.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid access token claims")
	}
	return claims, nil
}

func (t *Tokens) key(*jwt.Token) (any, error) {
	return t.secret, nil
}

// Validate implements middleware.TokenValidator. Tokens that name no user or
// a role other than admin or user are rejected.
func (t *Tokens) Validate(token string) (*middleware.Claims, error) {
	claims, err := t.Parse(token)
	if err != nil {
		return nil, err
	}
	actor := claims.Actor()
	if actor.UserID == "" {
		return nil, errors.New("access token has no user id")
	}
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleUser {
		return nil, fmt.Errorf("access token has unknown role %q", actor.Role)
	}
	return &middleware.Claims{UserID: actor.UserID, Email: claims.Email, Role: actor.Role}, nil
}
