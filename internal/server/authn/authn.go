// Package authn turns credentials into principals. Token formats live here;
// the rest of the server only sees authz.Principal.
package authn

import (
	"context"
	"fmt"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// Identity is what an authentication backend vouches for.
type Identity struct {
	SubjectID   *string  `json:"subject_id,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// Principal converts the identity. Unknown roles are rejected rather than
// downgraded, and no credential may claim the system role.
func (i Identity) Principal() (authz.Principal, error) {
	role, err := authz.ParseRole(i.Role)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("%w: %w", authz.ErrUnauthenticated, err)
	}

	if role == authz.RoleSystem {
		return authz.Principal{}, fmt.Errorf("%w: system identities are internal", authz.ErrUnauthenticated)
	}

	var subject objects.ID
	if i.SubjectID != nil {
		subject = objects.ID(*i.SubjectID)
	}

	if subject.IsZero() && role != authz.RoleAnonymous {
		return authz.Principal{}, fmt.Errorf("%w: %s identity without subject", authz.ErrUnauthenticated, role)
	}

	return authz.NewPrincipal(subject, role, i.Permissions...), nil
}

// Resolver resolves a credential into a principal. An empty credential is
// the anonymous principal; an invalid one is authz.ErrUnauthenticated.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (authz.Principal, error)
}
