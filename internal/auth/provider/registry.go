package provider

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned for names that were never registered.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// Registry holds all configured OAuth providers and allows
// lookup by provider name. It performs no auth logic itself.
type Registry struct {
	providers map[string]OAuthProvider
}

// NewRegistry registers the given OAuth providers by name.
// A later provider with the same name replaces an earlier one.
func NewRegistry(list ...OAuthProvider) *Registry {
	m := make(map[string]OAuthProvider)
	for _, p := range list {
		if p == nil {
			continue
		}
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the OAuth provider by name or ErrUnknownProvider.
func (r *Registry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered provider names in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
