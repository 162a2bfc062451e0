// Package jwtx signs and verifies the short-lived access tokens issued at
// sign-in. Refresh tokens are opaque and never pass through this package.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Access tokens are short-lived; the opaque refresh
// token carries the long-lived session.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims are the access-token claims. The role set is embedded so resource
// servers can authorize without a round trip to the identity provider.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the refresh-token family this access token belongs to.
	SID string `json:"sid,omitempty"`

	// DefaultRole is the role active when the caller selects none.
	DefaultRole string `json:"default_role,omitempty"`

	// AllowedRoles is the full set of roles the session may act under.
	AllowedRoles []string `json:"allowed_roles,omitempty"`

	// Anonymous marks tokens issued to anonymous identities.
	Anonymous bool `json:"anonymous,omitempty"`

	// Extra carries arbitrary extension claims (profile-derived values).
	Extra map[string]any `json:"ext,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	subject, sid string,
	defaultRole string,
	allowedRoles []string,
	anonymous bool,
	extra map[string]any,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:          sid,
		DefaultRole:  defaultRole,
		AllowedRoles: allowedRoles,
		Anonymous:    anonymous,
		Extra:        extra,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
