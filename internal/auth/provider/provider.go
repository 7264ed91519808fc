package provider

import (
	"context"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

// AuthOptions carries per-request values for the authorization redirect.
type AuthOptions struct {
	// Params are request parameters offered for passthrough. Providers
	// forward only the names they are configured to accept.
	Params map[string]string

	// Locales is the caller's Accept-Language header, sent as ui_locales.
	Locales string
}

// OAuthProvider defines the contract every external auth provider
// must implement. Implementations return identity facts only and
// must not perform account creation, linking, or session management.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "piratenlogin").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string, opts AuthOptions) string

	// ExchangeCode exchanges the authorization code for provider credentials
	// and returns the decoded identity token. No auth decisions are made here.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.IdentityToken, error)
}
