package testing

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MintToken signs a bearer token for the given username with the provided
// secret, matching what the external identity provider would issue.
func MintToken(secret, username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
