package domain

// AccessScope is the data-visibility restriction derived from the caller
// for a single request. It is never persisted; every tool call during the
// request is filtered through it.
type AccessScope struct {
	restricted bool
	ownerID    int
}

// Unrestricted returns the scope with full data visibility.
func Unrestricted() AccessScope {
	return AccessScope{}
}

// RestrictedToOwner returns a scope limited to one owner's records.
func RestrictedToOwner(ownerID int) AccessScope {
	return AccessScope{restricted: true, ownerID: ownerID}
}

// OwnerID reports whether the scope is restricted and, if so, to which
// owner id.
func (s AccessScope) OwnerID() (int, bool) {
	return s.ownerID, s.restricted
}

// Restricted reports whether the scope limits visibility to one owner.
func (s AccessScope) Restricted() bool {
	return s.restricted
}
