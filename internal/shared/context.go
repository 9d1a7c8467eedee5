package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role distinguishes the two kinds of authenticated callers.
type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleAccountant Role = "ACCOUNTANT"
)

// Valid reports whether the role is one the service knows.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAccountant
}

// Identity is the authenticated caller, as established by the edge proxy.
// Authentication itself (credentials, JWT issuance) lives outside this service.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
