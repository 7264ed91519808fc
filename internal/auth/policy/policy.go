package policy

import (
	"errors"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

// Policy names the role a new identity must carry and the group that
// mirrors it on the local account.
type Policy struct {
	RequiredRole string
	GroupName    string
}

// Validate rejects an incomplete policy.
func (p Policy) Validate() error {
	if p.RequiredRole == "" {
		return errors.New("policy: required role is empty")
	}
	if p.GroupName == "" {
		return errors.New("policy: group name is empty")
	}
	return nil
}

// HasRequiredRole reports whether the token's role claim contains the
// required role. The match is exact and case-sensitive.
func (p Policy) HasRequiredRole(token *auth.IdentityToken) bool {
	if token == nil {
		return false
	}
	for _, role := range token.Roles {
		if role == p.RequiredRole {
			return true
		}
	}
	return false
}
