package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

// MemoryAssociations keeps associations in process memory.
// Used in tests and for local development without PostgreSQL.
type MemoryAssociations struct {
	mu    sync.Mutex
	byKey map[string]auth.Association
}

func NewMemoryAssociations() *MemoryAssociations {
	return &MemoryAssociations{byKey: make(map[string]auth.Association)}
}

func (m *MemoryAssociations) FindOrCreate(_ context.Context, provider, subject string) (*auth.Association, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.byKey[auth.AssociationKey(provider, subject)]; ok {
		return &a, nil
	}
	return &auth.Association{Provider: provider, Subject: subject}, nil
}

func (m *MemoryAssociations) Save(_ context.Context, a *auth.Association) error {
	if a.Provider == "" || a.Subject == "" {
		return fmt.Errorf("%w: association key is incomplete", ErrPersistence)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if prev, ok := m.byKey[a.Key()]; ok {
		a.CreatedAt = prev.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	m.byKey[a.Key()] = *a
	return nil
}

// Lookup returns a copy of the stored association without creating one.
func (m *MemoryAssociations) Lookup(provider, subject string) (*auth.Association, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byKey[auth.AssociationKey(provider, subject)]
	if !ok {
		return nil, false
	}
	return &a, true
}

// Len returns the number of stored associations.
func (m *MemoryAssociations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// MemoryAccounts keeps accounts and group definitions in process memory.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	groups   map[string]struct{}
	writes   int
}

func NewMemoryAccounts(groups ...string) *MemoryAccounts {
	m := &MemoryAccounts{
		accounts: make(map[string]*auth.Account),
		groups:   make(map[string]struct{}),
	}
	for _, g := range groups {
		m.groups[g] = struct{}{}
	}
	return m
}

func (m *MemoryAccounts) Get(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryAccounts) Create(_ context.Context, a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkGroups(a.Groups); err != nil {
		return err
	}
	for _, other := range m.accounts {
		if strings.EqualFold(other.Username, a.Username) {
			return fmt.Errorf("%w: username %q is taken", ErrPersistence, a.Username)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, ok := m.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account %s already exists", ErrPersistence, a.ID)
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.accounts[a.ID] = a.Clone()
	m.writes++
	return nil
}

func (m *MemoryAccounts) Save(_ context.Context, a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; !ok {
		return fmt.Errorf("%w: account %s: %v", ErrPersistence, a.ID, ErrNotFound)
	}
	if err := m.checkGroups(a.Groups); err != nil {
		return err
	}
	a.UpdatedAt = time.Now()
	m.accounts[a.ID] = a.Clone()
	m.writes++
	return nil
}

func (m *MemoryAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accounts, id)
	return nil
}

func (m *MemoryAccounts) checkGroups(groups []string) error {
	for _, g := range groups {
		if _, ok := m.groups[g]; !ok {
			return fmt.Errorf("%w: unknown group %q", ErrPersistence, g)
		}
	}
	return nil
}

// Len returns the number of stored accounts.
func (m *MemoryAccounts) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func (m *MemoryAccounts) GroupExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.groups[name]
	return ok, nil
}

// AddGroup defines a group.
func (m *MemoryAccounts) AddGroup(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[name] = struct{}{}
}

// Writes returns the number of successful creates and saves.
func (m *MemoryAccounts) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
