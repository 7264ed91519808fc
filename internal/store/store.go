package store

import (
	"context"
	"errors"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrPersistence = errors.New("store: persistence failed")
)

// Associations persists identity associations keyed by (provider, subject).
// Implementations must never hold two records for the same key.
type Associations interface {
	// FindOrCreate returns the stored association or a new, unsaved,
	// unlinked one.
	FindOrCreate(ctx context.Context, provider, subject string) (*auth.Association, error)

	// Save upserts the association on its natural key.
	Save(ctx context.Context, a *auth.Association) error
}

// Accounts persists local accounts and their group memberships.
// Create and Save fail with ErrPersistence, writing nothing, when Groups
// names a group that is not defined.
type Accounts interface {
	Get(ctx context.Context, id string) (*auth.Account, error)
	Create(ctx context.Context, a *auth.Account) error
	Save(ctx context.Context, a *auth.Account) error

	// Delete removes the account. Deleting a missing account is not an error.
	Delete(ctx context.Context, id string) error

	// GroupExists reports whether the named group is defined.
	GroupExists(ctx context.Context, name string) (bool, error)
}

// Locker serializes work on a single association key across requests.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
