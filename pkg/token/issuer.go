// Package token issues the two token kinds the auth flows need: opaque
// random bearer tokens for email verification and password reset, and
// signed JWT session tokens carrying the user id.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OpaqueTokenBytes is the number of random bytes in an opaque token
// (32 bytes = 256 bits)
const OpaqueTokenBytes = 32

// SessionTokenTTL is the signed session token lifetime
const SessionTokenTTL = 24 * time.Hour

// ErrInvalidToken is returned when a session token fails verification
// for any reason: bad signature, malformed claims, or expiry.
var ErrInvalidToken = errors.New("invalid or expired session token")

// Issuer mints opaque and signed tokens
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer creates a token issuer signing with the given secret
func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// IssueOpaqueToken creates a cryptographically random bearer token,
// base64url encoded without padding.
func (i *Issuer) IssueOpaqueToken() (string, error) {
	buf := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// IssueSessionToken creates a signed HS256 token whose only claim is the
// user id, valid for SessionTokenTTL.
func (i *Issuer) IssueSessionToken(userID int64) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// VerifySessionToken parses and verifies a session token, returning the
// user id it carries. Returns ErrInvalidToken on bad signature or expiry.
func (i *Issuer) VerifySessionToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
