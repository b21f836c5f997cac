// ABOUTME: Signed session tokens for the admin management API
// ABOUTME: HS256 JWTs carrying the admin email, pinned to this service as issuer

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// tokenIssuer pins tokens to this service; a token minted with the same
// secret by some other deployment does not verify here.
const tokenIssuer = "teable-gateway"

// SessionTokens issues and verifies admin session tokens for the management
// API. One instance per process, keyed by the configured JWT secret.
type SessionTokens struct {
	secret []byte
}

// NewSessionTokens creates a token issuer/verifier over the given secret
func NewSessionTokens(secret []byte) *SessionTokens {
	return &SessionTokens{secret: secret}
}

// Issue signs a session token for the admin identified by email
func (s *SessionTokens) Issue(email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": email,
		"iss": tokenIssuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates a session token and returns the admin email it was issued
// for. Expired tokens report ErrExpiredToken so the API can tell the caller
// to log in again rather than rejecting the credentials.
func (s *SessionTokens) Verify(tokenString string) (email string, err error) {
	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}
