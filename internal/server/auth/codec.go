// Package auth holds the bearer-token codec and the permission gate that
// decides whether an HTTP request may reach the file endpoints.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim keys carried in access tokens.
const (
	ClaimID   = "id"
	ClaimRole = "role"
)

// Payload is the raw claim mapping recovered from a verified token.
type Payload map[string]any

// Codec signs and verifies HS256 access tokens with a fixed secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// Encode issues a token for the given identity and role valid for ttl.
func (c *Codec) Encode(id, role string, ttl time.Duration) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		ClaimID:   id,
		ClaimRole: role,
		"iat":     jwt.NewNumericDate(now),
		"exp":     jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(c.secret)
}

// Decode verifies raw and returns its claims. Any failure, including a bad
// signature, a foreign algorithm, expiry, a missing exp claim or garbage
// input, yields (false, nil).
// A verified token lacking id or role still decodes with ok=true.
func (c *Codec) Decode(raw string) (ok bool, payload Payload) {
	defer func() {
		if recover() != nil {
			ok, payload = false, nil
		}
	}()

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return false, nil
	}
	return true, Payload(claims)
}
