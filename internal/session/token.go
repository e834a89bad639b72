package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "autoconnect-gateway"

type TokenClaims struct {
	jwt.RegisteredClaims

	SessionID string `json:"sid"`
}

// Tokens signs and verifies session tokens (JWT, HS256).
type Tokens struct {
	Secret []byte
}

func (t Tokens) Sign(s *Session) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("missing session secret")
	}
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   s.User.ID,
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			NotBefore: jwt.NewNumericDate(s.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		SessionID: s.ID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Verify checks the signature and time window of tokenString and returns
// the session id it names.
func (t Tokens) Verify(tokenString string, now time.Time) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("missing token")
	}
	if len(t.Secret) == 0 {
		return "", fmt.Errorf("missing session secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	claims := &TokenClaims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t2 *jwt.Token) (any, error) {
		return t.Secret, nil
	})
	if err != nil {
		return "", err
	}
	if !tok.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.SessionID == "" {
		return "", fmt.Errorf("missing session id in token")
	}
	return claims.SessionID, nil
}
