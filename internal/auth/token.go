// Package auth verifies caller identity tokens. Token issuance belongs to
// the identity provider; this server only validates bearer tokens it is
// handed and extracts the caller summary.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskmesh/syncserver/internal/model"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Email        string `json:"email,omitempty"`
	IsSuperAdmin bool   `json:"isSuperAdmin,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses an HS256 token and returns the caller identity. The
// subject claim carries the user id. A 30s leeway absorbs clock skew
// between this server and the identity provider.
func Verify(token string, key []byte) (model.Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return model.Identity{}, errors.New("invalid token")
	}

	if claims.Subject == "" {
		return model.Identity{}, errors.New("missing subject")
	}
	return model.Identity{
		ID:           claims.Subject,
		Email:        claims.Email,
		IsSuperAdmin: claims.IsSuperAdmin,
	}, nil
}

// Sign issues a token for the given identity. Used by tests and local
// tooling; production tokens come from the identity provider.
func Sign(id model.Identity, key []byte, ttl time.Duration) (string, error) {
	claims := Claims{
		Email:        id.Email,
		IsSuperAdmin: id.IsSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
