package models

// IdentityState is the authentication state of a caller.
type IdentityState string

const (
	StateAnonymous     IdentityState = "anonymous"
	StateAuthenticated IdentityState = "authenticated"
)

// Identity is the anonymous handle and company domain of a signed-in session.
// A nil *Identity is the Anonymous state.
type Identity struct {
	AnonymousID   string `json:"anonymous_id"`
	CompanyDomain string `json:"company_domain"`
}

// State reports whether the identity is authenticated.
func (i *Identity) State() IdentityState {
	if i.Authenticated() {
		return StateAuthenticated
	}
	return StateAnonymous
}

// Authenticated is true when the identity carries both an anonymous id and a domain.
func (i *Identity) Authenticated() bool {
	return i != nil && i.AnonymousID != "" && i.CompanyDomain != ""
}

// ViewerID returns the anonymous id, or "" for the Anonymous state.
func (i *Identity) ViewerID() string {
	if i == nil {
		return ""
	}
	return i.AnonymousID
}
