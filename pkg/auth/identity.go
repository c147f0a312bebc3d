// Package auth resolves bearer credentials into caller identities and
// guards the HTTP surface.
package auth

import (
	"context"
	"time"

	"dealerchat/pkg/models"
)

// Identity is the authenticated caller.
type Identity struct {
	ID   string
	Role models.Role
	// TokenID and ExpiresAt identify the credential for revocation.
	TokenID   string
	ExpiresAt time.Time
}

func (i *Identity) IsAdmin() bool { return i != nil && i.Role == models.RoleAdmin }
func (i *Identity) IsStaff() bool { return i != nil && i.Role.Staff() }

type ctxIdentityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

// FromContext returns the caller identity or nil.
func FromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(ctxIdentityKey{}).(*Identity); ok {
		return v
	}
	return nil
}
