package resolver

import (
	"context"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

// Resolver determines which local account an external identity belongs to
// and keeps the account's authorization group in step with the identity's
// role claim. It is the ONLY place where identity-to-account mapping
// logic lives.
type Resolver interface {
	// Reconcile is called once per completed provider handshake. existing
	// is the account of the user already signed in, if any. Authorization
	// decisions are reported in the outcome; errors are returned only for
	// malformed tokens and persistence failures.
	Reconcile(
		ctx context.Context,
		token *auth.IdentityToken,
		existing *auth.Account,
	) (*auth.Outcome, error)

	// AfterCreateAccount links a freshly provisioned account to the
	// association named by a previous outcome's extra data.
	AfterCreateAccount(
		ctx context.Context,
		account *auth.Account,
		extra auth.ExtraData,
	) error
}
