// Package auth verifies bearer tokens issued by the account system.
//
// Token issuance (signup, login) lives outside this service; shortly only
// checks the HMAC signature and extracts the account id from the subject
// claim.
package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claims checks.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates HMAC-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
	}
}

// VerifyToken checks the token signature and expiry and returns the account
// id carried in the subject claim.
func (v *Verifier) VerifyToken(token string) (int64, error) {
	const op = "auth.Verifier.VerifyToken"

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, fmt.Errorf("%s: missing subject: %w", op, ErrInvalidToken)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: non-numeric subject: %w", op, ErrInvalidToken)
	}

	return userID, nil
}
