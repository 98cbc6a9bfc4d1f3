package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role names known to the engine. The permission matrix itself lives in the
// external authorization layer; services only evaluate role predicates.
const (
	// RoleManagement is the top authority role required to approve
	// supplier contracts at or above the approval threshold.
	RoleManagement = "management"
	// RoleProcurement covers day-to-day procurement operations.
	RoleProcurement = "procurement"
	// RoleProjectLead covers assignment and rating operations.
	RoleProjectLead = "project_lead"
)

// Identity describes the authenticated actor behind a mutating call.
type Identity struct {
	ActorID uuid.UUID
	Email   string
	Roles   []string
}

// HasRole reports whether the identity carries the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
