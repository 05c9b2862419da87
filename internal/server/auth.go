package server

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"messager/internal/storage"
)

// ErrUnauthorized is returned when a request carries no usable credentials
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves transport credentials to a stored user. Token
// issuance belongs to the external identity provider; this side only
// verifies and maps to the system of record.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (storage.User, error)
}

// TokenAuthenticator verifies HMAC-signed bearer tokens whose subject is the
// username, then loads the user so admin-flag changes apply immediately.
type TokenAuthenticator struct {
	secret []byte
	store  *storage.Store
}

func NewTokenAuthenticator(secret string, store *storage.Store) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), store: store}
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, authorization string) (storage.User, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return storage.User{}, ErrUnauthorized
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return a.secret, nil
	})
	if err != nil || claims.Subject == "" {
		return storage.User{}, ErrUnauthorized
	}

	user, err := a.store.UserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			return storage.User{}, ErrUnauthorized
		}
		return storage.User{}, err
	}

	return user, nil
}

type principalKey struct{}

// contextWithUser stashes the authenticated user for downstream handlers
func contextWithUser(ctx context.Context, u storage.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// userFromContext retrieves the authenticated user placed by the
// authentication middleware
func userFromContext(ctx context.Context) (storage.User, bool) {
	u, ok := ctx.Value(principalKey{}).(storage.User)
	return u, ok
}
