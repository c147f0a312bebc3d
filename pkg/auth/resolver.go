package auth

import (
	"context"
	"strings"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
)

// Directory is the local user projection the resolver consults.
type Directory interface {
	EnsureUser(id string, role models.Role) (models.User, bool, error)
}

// Resolver turns a raw credential into an Identity.
type Resolver struct {
	tokens  *Tokens
	revoker Revoker
	dir     Directory
}

func NewResolver(tokens *Tokens, revoker Revoker, dir Directory) *Resolver {
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &Resolver{tokens: tokens, revoker: revoker, dir: dir}
}

// Resolve returns the caller identity, or nil when the credential is
// missing, invalid, revoked, or belongs to a deleted user. The directory
// role wins over the token role once the user is known.
func (r *Resolver) Resolve(ctx context.Context, credential string) *Identity {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil
	}
	id, err := r.tokens.Parse(credential)
	if err != nil {
		logger.Debug("token_rejected", "error", err)
		return nil
	}
	if id.TokenID != "" {
		revoked, err := r.revoker.IsRevoked(ctx, id.TokenID)
		if err != nil {
			logger.Error("revocation_check_failed", "error", err)
			return nil
		}
		if revoked {
			logger.Debug("token_revoked", "user", id.ID)
			return nil
		}
	}
	if r.dir != nil {
		u, created, err := r.dir.EnsureUser(id.ID, id.Role)
		if err != nil {
			logger.Error("directory_lookup_failed", "user", id.ID, "error", err)
			return nil
		}
		if u.IsDeleted() {
			logger.Warn("deleted_user_token", "user", id.ID)
			return nil
		}
		if created {
			logger.Info("user_projected", "user", id.ID, "role", string(u.Role))
		}
		id.Role = u.Role
	}
	return id
}

// Revoke invalidates the credential behind id.
func (r *Resolver) Revoke(ctx context.Context, id *Identity) error {
	if id == nil || id.TokenID == "" {
		return nil
	}
	if err := r.revoker.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
		return err
	}
	logger.AuditEvent("token_revoked", id.ID, "jti", id.TokenID)
	return nil
}

// BearerFromHeader extracts the token from "Authorization: Bearer <t>".
func BearerFromHeader(h string) string {
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
