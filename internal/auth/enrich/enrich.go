package enrich

import (
	"context"
	"net/url"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
	"github.com/posixpascal/discourse-piratenlogin/internal/store"
)

// Enricher copies provider profile data onto a local account after login.
// Implementations are best-effort: they never return errors to the caller
// and must tolerate a nil account.
type Enricher interface {
	Avatar(ctx context.Context, a *auth.Account, imageURL string)
	Profile(ctx context.Context, a *auth.Account, info auth.Info)
}

// Nop ignores every call.
type Nop struct{}

func (Nop) Avatar(context.Context, *auth.Account, string)  {}
func (Nop) Profile(context.Context, *auth.Account, auth.Info) {}

// AccountProfile stores the provider's display name and avatar URL on the
// account. Fields the provider leaves empty are not touched.
type AccountProfile struct {
	accounts store.Accounts
}

func NewAccountProfile(accounts store.Accounts) *AccountProfile {
	return &AccountProfile{accounts: accounts}
}

func (p *AccountProfile) Avatar(ctx context.Context, a *auth.Account, imageURL string) {
	if a == nil || imageURL == "" || imageURL == a.AvatarURL {
		return
	}

	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		logger.Warn("avatar url rejected", map[string]any{
			"account_id": a.ID,
			"url":        imageURL,
		})
		return
	}

	prev := a.AvatarURL
	a.AvatarURL = u.String()
	if err := p.accounts.Save(ctx, a); err != nil {
		a.AvatarURL = prev
		logger.Warn("avatar update failed", map[string]any{
			"account_id": a.ID,
			"error":      err.Error(),
		})
	}
}

func (p *AccountProfile) Profile(ctx context.Context, a *auth.Account, info auth.Info) {
	if a == nil {
		return
	}

	name := displayName(info)
	if name == "" || name == a.Name {
		return
	}

	prev := a.Name
	a.Name = name
	if err := p.accounts.Save(ctx, a); err != nil {
		a.Name = prev
		logger.Warn("profile update failed", map[string]any{
			"account_id": a.ID,
			"error":      err.Error(),
		})
	}
}

func displayName(info auth.Info) string {
	if info.Name != "" {
		return info.Name
	}
	if info.FirstName != "" && info.LastName != "" {
		return info.FirstName + " " + info.LastName
	}
	return info.FirstName + info.LastName
}
