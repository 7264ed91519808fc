package auth

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidToken is matched by every ValidationError.
var ErrInvalidToken = errors.New("invalid identity token")

// ValidationError reports a malformed identity token or extra data.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrInvalidToken, e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidToken
}

// Info is the profile snapshot asserted by the provider.
type Info struct {
	Nickname    string `json:"nickname,omitempty"`
	Name        string `json:"name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Image       string `json:"image,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Credentials is the opaque token material returned by the provider.
// It is stored as-is and never interpreted by the reconciler.
type Credentials struct {
	AccessToken  string    `json:"token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// IdentityToken represents one decoded login assertion from the identity
// provider. It contains facts only, no decisions.
type IdentityToken struct {
	Provider    string // provider identifier, e.g. "piratenlogin"
	Subject     string // provider-scoped unique user identifier (sub)
	Info        Info
	Credentials Credentials
	Roles       []string // raw role claim, order preserved
}

// Validate rejects tokens that lack the association key.
func (t *IdentityToken) Validate() error {
	if t == nil {
		return &ValidationError{Field: "token"}
	}
	if t.Provider == "" {
		return &ValidationError{Field: "provider"}
	}
	if t.Subject == "" {
		return &ValidationError{Field: "subject"}
	}
	return nil
}

// Extra returns the replay data for the account-creation hook.
func (t *IdentityToken) Extra() ExtraData {
	return ExtraData{Provider: t.Provider, Subject: t.Subject}
}
