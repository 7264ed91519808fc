package groups

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
	"github.com/posixpascal/discourse-piratenlogin/internal/metrics"
	"github.com/posixpascal/discourse-piratenlogin/internal/store"
)

// groupTTL bounds how long a positive group lookup is trusted.
const groupTTL = time.Minute

// Synchronizer keeps one named authorization group on local accounts in
// step with the identity provider's role claim.
type Synchronizer struct {
	accounts store.Accounts
	group    string
	known    *cache.Cache
}

func NewSynchronizer(accounts store.Accounts, group string) *Synchronizer {
	return &Synchronizer{
		accounts: accounts,
		group:    group,
		known:    cache.New(groupTTL, 2*groupTTL),
	}
}

// Group returns the managed group name.
func (s *Synchronizer) Group() string {
	return s.group
}

// Grant adds the account to the group. It writes nothing when the account
// is nil, already a member, or the group is not defined.
func (s *Synchronizer) Grant(ctx context.Context, a *auth.Account) error {
	if a == nil {
		return nil
	}
	if a.InGroup(s.group) {
		metrics.GroupSync.WithLabelValues(metrics.ActionNoop).Inc()
		return nil
	}

	exists, err := s.groupExists(ctx)
	if err != nil {
		return fmt.Errorf("groups: grant %s: %w", s.group, err)
	}
	if !exists {
		logger.Warn("authorization group not defined, grant skipped", map[string]any{
			"group":      s.group,
			"account_id": a.ID,
		})
		return nil
	}

	a.AddGroup(s.group)
	if err := s.accounts.Save(ctx, a); err != nil {
		a.RemoveGroup(s.group)
		return fmt.Errorf("groups: grant %s: %w", s.group, err)
	}

	metrics.GroupSync.WithLabelValues(metrics.ActionGrant).Inc()
	logger.Info("authorization group granted", map[string]any{
		"group":      s.group,
		"account_id": a.ID,
	})
	return nil
}

// Revoke removes the account from the group and clears its title. The
// title is cleared and the account saved even if it was never a member.
func (s *Synchronizer) Revoke(ctx context.Context, a *auth.Account) error {
	if a == nil {
		return nil
	}

	prevGroups, prevTitle := a.Groups, a.Title
	removed := a.RemoveGroup(s.group)
	a.Title = ""

	if err := s.accounts.Save(ctx, a); err != nil {
		a.Groups, a.Title = prevGroups, prevTitle
		return fmt.Errorf("groups: revoke %s: %w", s.group, err)
	}

	metrics.GroupSync.WithLabelValues(metrics.ActionRevoke).Inc()
	if removed {
		logger.Info("authorization group revoked", map[string]any{
			"group":      s.group,
			"account_id": a.ID,
		})
	}
	return nil
}

func (s *Synchronizer) groupExists(ctx context.Context) (bool, error) {
	if _, ok := s.known.Get(s.group); ok {
		return true, nil
	}

	exists, err := s.accounts.GroupExists(ctx, s.group)
	if err != nil {
		return false, err
	}
	if exists {
		s.known.SetDefault(s.group, struct{}{})
	}
	return exists, nil
}
