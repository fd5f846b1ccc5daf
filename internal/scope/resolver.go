// Package scope derives the per-request access scope from the resolved
// caller identity.
package scope

import (
	"errors"
	"fmt"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
)

// ErrIdentityResolution indicates a role was present but its required
// linked data was missing. This is a data-integrity fault upstream and
// must abort the request rather than silently downgrading scope.
var ErrIdentityResolution = errors.New("identity resolution failed")

// Resolve maps a caller to an access scope and the context string
// prepended to the system prompt. A nil caller yields the unrestricted
// scope with no context; chat itself requires authentication upstream.
func Resolve(caller *domain.CallerContext) (domain.AccessScope, string, error) {
	if caller == nil {
		return domain.Unrestricted(), "", nil
	}

	switch caller.Role {
	case domain.RoleOwner:
		if caller.OwnerID == nil {
			return domain.AccessScope{}, "", fmt.Errorf("%w: OWNER %q has no linked owner record", ErrIdentityResolution, caller.DisplayName)
		}
		ctx := fmt.Sprintf("The current user is %s (role: OWNER). Only provide information relevant to this user's pets and visits.", caller.DisplayName)
		return domain.RestrictedToOwner(*caller.OwnerID), ctx, nil
	case domain.RoleAdmin:
		ctx := fmt.Sprintf("The current user is %s (role: ADMIN). This user has access to all clinic data.", caller.DisplayName)
		return domain.Unrestricted(), ctx, nil
	default:
		return domain.AccessScope{}, "", fmt.Errorf("%w: unknown role %q", ErrIdentityResolution, caller.Role)
	}
}
