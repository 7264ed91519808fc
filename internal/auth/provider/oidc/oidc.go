package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
	"github.com/posixpascal/discourse-piratenlogin/internal/auth/provider"
	"github.com/posixpascal/discourse-piratenlogin/internal/i18n"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
)

// DefaultName is the provider identifier stored on associations.
const DefaultName = "piratenlogin"

// Config describes one OIDC identity provider.
type Config struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes requested on the authorization redirect.
	Scopes []string
	// TokenScope, when set, is sent as scope on the code exchange.
	TokenScope string
	// Passthrough names request parameters forwarded to the authorization
	// endpoint.
	Passthrough []string
	// Verbose logs claim details at debug level.
	Verbose bool
}

// Provider implements OAuth + OIDC authentication using discovery.
// It returns identity facts only; no account or session decisions are
// made here.
type Provider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	userInfo    func(ctx context.Context, ts oauth2.TokenSource) (*oidc.UserInfo, error)
	tokenScope  string
	passthrough map[string]bool
	verbose     bool
}

var _ provider.OAuthProvider = (*Provider)(nil)

// New initializes the provider using OIDC discovery on cfg.Issuer.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc: issuer, client id and redirect url are required")
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery for %s: %w", cfg.Issuer, err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	p := newProvider(cfg, oidcProvider.Endpoint(), verifier)
	p.userInfo = oidcProvider.UserInfo
	return p, nil
}

func newProvider(cfg Config, ep oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *Provider {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	passthrough := make(map[string]bool, len(cfg.Passthrough))
	for _, p := range cfg.Passthrough {
		if p = strings.TrimSpace(p); p != "" {
			passthrough[p] = true
		}
	}

	return &Provider{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       scopes,
		},
		verifier:    verifier,
		tokenScope:  cfg.TokenScope,
		passthrough: passthrough,
		verbose:     cfg.Verbose,
	}
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the authorization URL with PKCE parameters, the
// caller's preferred locales and any configured passthrough parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string, opts provider.AuthOptions) string {
	params := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}

	if locales := i18n.UILocales(opts.Locales); locales != "" {
		params = append(params, oauth2.SetAuthURLParam("ui_locales", locales))
	}

	for k, v := range opts.Params {
		if p.passthrough[k] && v != "" {
			params = append(params, oauth2.SetAuthURLParam(k, v))
		}
	}

	return p.oauthConfig.AuthCodeURL(state, params...)
}

// ExchangeCode exchanges the authorization code and returns the decoded
// identity token. This method MUST NOT create accounts or sessions.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.IdentityToken, error) {

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	}
	if p.tokenScope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", p.tokenScope))
	}

	token, err := p.oauthConfig.Exchange(ctx, code, opts...)
	if err != nil {
		logger.Error("oidc token exchange failed", map[string]any{
			"provider": p.name,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("oidc: token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc: provider did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Error("oidc id_token verification failed", map[string]any{
			"provider": p.name,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("oidc: verify id_token: %w", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc: parse id_token claims: %w", err)
	}

	// Roles may only be released through the userinfo endpoint.
	if p.userInfo != nil {
		if ui, err := p.userInfo(ctx, oauth2.StaticTokenSource(token)); err == nil {
			var extra Claims
			if err := ui.Claims(&extra); err == nil {
				claims.merge(extra)
			}
		} else {
			logger.Debug("oidc userinfo unavailable", map[string]any{
				"provider": p.name,
				"error":    err.Error(),
			})
		}
	}

	if p.verbose {
		logger.Debug("oidc claims", map[string]any{
			"provider": p.name,
			"sub":      claims.Subject,
			"nickname": claims.PreferredUsername,
			"email":    claims.Email,
			"roles":    claims.Roles,
			"issuer":   idToken.Issuer,
			"expiry":   idToken.Expiry.Unix(),
		})
	}

	return claims.IdentityToken(p.name, credentialsFrom(token, rawIDToken)), nil
}

func credentialsFrom(token *oauth2.Token, rawIDToken string) auth.Credentials {
	return auth.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		ExpiresAt:    token.Expiry,
	}
}
