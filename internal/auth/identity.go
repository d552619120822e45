// Package auth resolves the shopper identity for each request: an
// authenticated user from a bearer token, or an anonymous session token from
// the X-Session-Id header.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoIdentity means the request carried neither a valid bearer token nor a
// session header. Cart and checkout routes treat this as a client error.
var ErrNoIdentity = errors.New("no user or session identity on request")

// Identity names the owner of a cart or order. Exactly one of UserID /
// SessionToken is set.
type Identity struct {
	UserID       uuid.UUID
	SessionToken string
}

func UserIdentity(userID uuid.UUID) Identity {
	return Identity{UserID: userID}
}

func SessionIdentity(token string) Identity {
	return Identity{SessionToken: token}
}

func (i Identity) IsUser() bool {
	return i.UserID != uuid.Nil
}

func (i Identity) Valid() bool {
	return (i.UserID != uuid.Nil) != (i.SessionToken != "")
}

// String is used for payment-intent metadata and log attributes.
func (i Identity) String() string {
	if i.IsUser() {
		return i.UserID.String()
	}
	if i.SessionToken != "" {
		return "guest:" + i.SessionToken
	}
	return "unknown"
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity placed by the middleware, or
// ErrNoIdentity when the request was not identified.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	if ctx == nil {
		return Identity{}, ErrNoIdentity
	}
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || !identity.Valid() {
		return Identity{}, ErrNoIdentity
	}
	return identity, nil
}
