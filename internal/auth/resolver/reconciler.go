package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/enrich"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/groups"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/policy"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
	"github.com/posixpascal/discourse-piratenlogin/internal/metrics"
	"github.com/posixpascal/discourse-piratenlogin/internal/store"
)

var _ Resolver = (*Reconciler)(nil)

// Reconciler resolves identities against the association store.
type Reconciler struct {
	associations    store.Associations
	accounts        store.Accounts
	groups          *groups.Synchronizer
	policy          policy.Policy
	enricher        enrich.Enricher
	locker          store.Locker
	connectExisting bool
	now             func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEnricher sets the profile/avatar collaborator. Default: enrich.Nop.
func WithEnricher(e enrich.Enricher) Option {
	return func(r *Reconciler) { r.enricher = e }
}

// WithLocker sets the per-identity lock. Default: an in-process locker.
func WithLocker(l store.Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithConnectExisting controls whether a signed-in user may attach the
// identity to their account. Default: true.
func WithConnectExisting(enabled bool) Option {
	return func(r *Reconciler) { r.connectExisting = enabled }
}

// WithClock overrides the clock used for last-used timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(
	associations store.Associations,
	accounts store.Accounts,
	p policy.Policy,
	opts ...Option,
) (*Reconciler, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	r := &Reconciler{
		associations:    associations,
		accounts:        accounts,
		groups:          groups.NewSynchronizer(accounts, p.GroupName),
		policy:          p,
		enricher:        enrich.Nop{},
		locker:          store.NewMemoryLocker(),
		connectExisting: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Reconciler) Reconcile(
	ctx context.Context,
	token *auth.IdentityToken,
	existing *auth.Account,
) (*auth.Outcome, error) {

	if err := token.Validate(); err != nil {
		return nil, err
	}

	unlock, err := r.locker.Lock(ctx, auth.AssociationKey(token.Provider, token.Subject))
	if err != nil {
		return nil, fmt.Errorf("resolver: lock association: %w", err)
	}
	defer unlock()

	// 1. Fetch or create the association
	assoc, err := r.associations.FindOrCreate(ctx, token.Provider, token.Subject)
	if err != nil {
		metrics.LoginOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	owner, err := r.owner(ctx, assoc)
	if err != nil {
		metrics.LoginOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	// 2. Evaluate the role claim
	hasRole := r.policy.HasRequiredRole(token)

	// 3. New identities need the role; nothing is written for them
	if owner == nil && !hasRole {
		metrics.LoginOutcomes.WithLabelValues(metrics.OutcomeDenied).Inc()
		logger.Info("login denied: required role missing", map[string]any{
			"provider": token.Provider,
			"subject":  token.Subject,
		})
		return &auth.Outcome{
			Failed:       true,
			FailedReason: auth.ReasonNotAllowed,
		}, nil
	}

	// 4. Reconnect to the signed-in account
	result := metrics.OutcomeLinked
	if r.connectExisting && existing != nil {
		switch {
		case owner == nil:
			owner = existing

		case owner.ID != existing.ID:
			// The previous owner must not keep the privileged group.
			if err := r.groups.Revoke(ctx, owner); err != nil {
				metrics.LoginOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
				return nil, err
			}
			logger.Info("association taken over", map[string]any{
				"provider":         token.Provider,
				"subject":          token.Subject,
				"previous_account": owner.ID,
				"account_id":       existing.ID,
			})
			owner = existing
			result = metrics.OutcomeTakeover
		}
	}
	if owner != nil {
		assoc.AccountID = owner.ID
	}

	// 5. Persist, linked or not, before any enrichment
	if err := r.persistAssociation(ctx, assoc, token); err != nil {
		metrics.LoginOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	// 6. Best-effort enrichment
	r.enrich(ctx, owner, assoc.Info)

	// 7. Mirror the role claim onto the group
	if owner != nil {
		if hasRole {
			err = r.groups.Grant(ctx, owner)
		} else {
			err = r.groups.Revoke(ctx, owner)
		}
		if err != nil {
			metrics.LoginOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, err
		}
	} else {
		result = metrics.OutcomePending
	}

	// 8. Success
	metrics.LoginOutcomes.WithLabelValues(result).Inc()

	return &auth.Outcome{
		Username: token.Info.Nickname,
		Account:  owner,
		Extra:    token.Extra(),
	}, nil
}

func (r *Reconciler) AfterCreateAccount(
	ctx context.Context,
	account *auth.Account,
	extra auth.ExtraData,
) error {

	if account == nil || account.ID == "" {
		return &auth.ValidationError{Field: "account"}
	}
	if err := extra.Validate(); err != nil {
		return err
	}

	unlock, err := r.locker.Lock(ctx, auth.AssociationKey(extra.Provider, extra.Subject))
	if err != nil {
		return fmt.Errorf("resolver: lock association: %w", err)
	}
	defer unlock()

	assoc, err := r.associations.FindOrCreate(ctx, extra.Provider, extra.Subject)
	if err != nil {
		return err
	}

	previous, err := r.owner(ctx, assoc)
	if err != nil {
		return err
	}
	if previous != nil && previous.ID != account.ID {
		if err := r.groups.Revoke(ctx, previous); err != nil {
			return err
		}
		logger.Info("association taken over", map[string]any{
			"provider":         extra.Provider,
			"subject":          extra.Subject,
			"previous_account": previous.ID,
			"account_id":       account.ID,
		})
	}
	assoc.AccountID = account.ID

	// The login that led here already passed the role check.
	if err := r.groups.Grant(ctx, account); err != nil {
		return err
	}

	if err := r.associations.Save(ctx, assoc); err != nil {
		return err
	}

	logger.Info("association linked to new account", map[string]any{
		"provider":   extra.Provider,
		"subject":    extra.Subject,
		"account_id": account.ID,
	})

	r.enrich(ctx, account, assoc.Info)
	return nil
}

// persistAssociation overwrites the snapshot fields from the token and
// saves the association, even when it has no owner yet.
func (r *Reconciler) persistAssociation(
	ctx context.Context,
	assoc *auth.Association,
	token *auth.IdentityToken,
) error {
	assoc.Info = token.Info
	assoc.Credentials = token.Credentials
	assoc.LastUsed = r.now()

	return r.associations.Save(ctx, assoc)
}

// owner loads the association's account. An owner that no longer exists
// is treated as no owner.
func (r *Reconciler) owner(ctx context.Context, assoc *auth.Association) (*auth.Account, error) {
	if !assoc.Linked() {
		return nil, nil
	}

	a, err := r.accounts.Get(ctx, assoc.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("association owner missing, treating as unlinked", map[string]any{
			"provider":   assoc.Provider,
			"subject":    assoc.Subject,
			"account_id": assoc.AccountID,
		})
		assoc.AccountID = ""
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolver: load owner: %w", err)
	}
	return a, nil
}

func (r *Reconciler) enrich(ctx context.Context, a *auth.Account, info auth.Info) {
	defer func() {
		if v := recover(); v != nil {
			logger.Warn("enrichment panicked", map[string]any{"panic": fmt.Sprint(v)})
		}
	}()

	r.enricher.Avatar(ctx, a, info.Image)
	r.enricher.Profile(ctx, a, info)
}
