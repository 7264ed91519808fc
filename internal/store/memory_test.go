package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

func TestMemoryAssociations_FindOrCreateDoesNotPersist(t *testing.T) {
	s := NewMemoryAssociations()

	a, err := s.FindOrCreate(context.Background(), "piratenlogin", "u1")
	require.NoError(t, err)

	assert.Equal(t, "piratenlogin", a.Provider)
	assert.Equal(t, "u1", a.Subject)
	assert.False(t, a.Linked())
	assert.Zero(t, s.Len())
}

func TestMemoryAssociations_SaveUpsertsOnKey(t *testing.T) {
	s := NewMemoryAssociations()
	ctx := context.Background()

	first := &auth.Association{Provider: "piratenlogin", Subject: "u1"}
	require.NoError(t, s.Save(ctx, first))
	created := first.CreatedAt

	second := &auth.Association{Provider: "piratenlogin", Subject: "u1", AccountID: "acc"}
	require.NoError(t, s.Save(ctx, second))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, created, second.CreatedAt)

	got, err := s.FindOrCreate(ctx, "piratenlogin", "u1")
	require.NoError(t, err)
	assert.Equal(t, "acc", got.AccountID)
}

func TestMemoryAssociations_ReturnsCopies(t *testing.T) {
	s := NewMemoryAssociations()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &auth.Association{Provider: "p", Subject: "s", AccountID: "a"}))

	got, err := s.FindOrCreate(ctx, "p", "s")
	require.NoError(t, err)
	got.AccountID = "other"

	stored, ok := s.Lookup("p", "s")
	require.True(t, ok)
	assert.Equal(t, "a", stored.AccountID)
}

func TestMemoryAssociations_SaveRejectsIncompleteKey(t *testing.T) {
	s := NewMemoryAssociations()

	err := s.Save(context.Background(), &auth.Association{Provider: "p"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestMemoryAccounts(t *testing.T) {
	s := NewMemoryAccounts("Piraten")
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	a := &auth.Account{Username: "pirat"}
	require.NoError(t, s.Create(ctx, a))
	assert.NotEmpty(t, a.ID)

	a.AddGroup("Piraten")
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.InGroup("Piraten"))
	assert.Equal(t, 2, s.Writes())

	a.AddGroup("Unknown")
	assert.ErrorIs(t, s.Save(ctx, a), ErrPersistence)

	assert.ErrorIs(t, s.Save(ctx, &auth.Account{ID: "missing"}), ErrPersistence)
}

func TestMemoryAccounts_GroupExists(t *testing.T) {
	s := NewMemoryAccounts()
	ctx := context.Background()

	ok, err := s.GroupExists(ctx, "Piraten")
	require.NoError(t, err)
	assert.False(t, ok)

	s.AddGroup("Piraten")
	ok, err = s.GroupExists(ctx, "Piraten")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryAccounts_CreateRejectsUndefinedGroupAndTakenUsername(t *testing.T) {
	s := NewMemoryAccounts("Piraten")
	ctx := context.Background()

	err := s.Create(ctx, &auth.Account{Username: "pirat", Groups: []string{"Unknown"}})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, s.Len())

	require.NoError(t, s.Create(ctx, &auth.Account{Username: "pirat"}))
	err = s.Create(ctx, &auth.Account{Username: "PIRAT"})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryAccounts_Delete(t *testing.T) {
	s := NewMemoryAccounts()
	ctx := context.Background()

	a := &auth.Account{Username: "pirat"}
	require.NoError(t, s.Create(ctx, a))

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err := s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "missing"))
}
