package oidc

import (
	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

// Claims are the standard OIDC profile claims plus the roles claim.
type Claims struct {
	Subject           string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	Nickname          string   `json:"nickname"`
	Name              string   `json:"name"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	Email             string   `json:"email"`
	Picture           string   `json:"picture"`
	Website           string   `json:"website"`
	Profile           string   `json:"profile"`
	Roles             []string `json:"roles"`
}

// merge fills empty fields from other. The subject is never replaced.
func (c *Claims) merge(other Claims) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.PreferredUsername, other.PreferredUsername)
	fill(&c.Nickname, other.Nickname)
	fill(&c.Name, other.Name)
	fill(&c.GivenName, other.GivenName)
	fill(&c.FamilyName, other.FamilyName)
	fill(&c.Email, other.Email)
	fill(&c.Picture, other.Picture)
	fill(&c.Website, other.Website)
	fill(&c.Profile, other.Profile)
	if len(c.Roles) == 0 {
		c.Roles = other.Roles
	}
}

// IdentityToken maps the claims onto an identity token for providerName.
func (c Claims) IdentityToken(providerName string, creds auth.Credentials) *auth.IdentityToken {
	nickname := c.PreferredUsername
	if nickname == "" {
		nickname = c.Nickname
	}
	website := c.Website
	if website == "" {
		website = c.Profile
	}

	var roles []string
	if len(c.Roles) > 0 {
		roles = append(roles, c.Roles...)
	}

	return &auth.IdentityToken{
		Provider: providerName,
		Subject:  c.Subject,
		Info: auth.Info{
			Nickname:  nickname,
			Name:      c.Name,
			FirstName: c.GivenName,
			LastName:  c.FamilyName,
			Email:     c.Email,
			Image:     c.Picture,
			Website:   website,
		},
		Credentials: creds,
		Roles:       roles,
	}
}
