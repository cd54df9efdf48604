// ABOUTME: JWT issuance and verification for access and refresh tokens
// ABOUTME: Uses HS256 signing with configurable secret and TTLs

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shoplane/shoplane-auth/internal/store"
)

// Token errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrMissingClaim  = errors.New("missing required claim")
	ErrWrongTokenUse = errors.New("wrong token use")
)

// Token use values carried in the "use" claim.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are the JWT claims carried by shoplane-auth tokens.
type Claims struct {
	Kind      store.ActorKind `json:"kind"`
	Use       string          `json:"use"`
	SessionID string          `json:"sid,omitempty"` // set on refresh tokens only
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates a token issuer with the given secret and TTLs.
func NewIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Access creates a new access token for the given actor.
func (i *Issuer) Access(actorID string, kind store.ActorKind) (string, error) {
	return i.sign(actorID, kind, UseAccess, "", i.accessTTL)
}

// Refresh creates a new refresh token bound to a session.
func (i *Issuer) Refresh(actorID string, kind store.ActorKind, sessionID string) (string, error) {
	return i.sign(actorID, kind, UseRefresh, sessionID, i.refreshTTL)
}

func (i *Issuer) sign(actorID string, kind store.ActorKind, use, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind:      kind,
		Use:       use,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token signature and expiry and checks that the token
// was issued for the expected use ("access" or "refresh").
func (i *Issuer) Verify(tokenString, expectedUse string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if !claims.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind", ErrMissingClaim)
	}
	if claims.Use != expectedUse {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenUse, claims.Use, expectedUse)
	}

	return claims, nil
}
