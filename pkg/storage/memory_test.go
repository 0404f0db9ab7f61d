// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/pkg/token"
)

func testUser(id, email string) *User {
	now := time.UnixMilli(1700000000000).UTC()
	return &User{
		ID:           id,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		PasswordHash: "$2a$10$hash",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	user := testUser("u1", "ada@example.com")
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	got, err = store.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "ada@example.com")))

	err := store.CreateUser(ctx, testUser("u2", "Ada@Example.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryStoreUpdateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	user := testUser("u1", "ada@example.com")
	require.NoError(t, store.CreateUser(ctx, user))

	user.MasterTokenID = "mt-1"
	user.RefreshTokenIDs = map[string]string{"cli": "rt-1"}
	require.NoError(t, store.UpdateUser(ctx, user))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "mt-1", got.MasterTokenID)
	assert.Equal(t, map[string]string{"cli": "rt-1"}, got.RefreshTokenIDs)

	err = store.UpdateUser(ctx, testUser("ghost", "ghost@example.com"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	user := testUser("u1", "ada@example.com")
	user.RefreshTokenIDs = map[string]string{"web": "rt-1"}
	require.NoError(t, store.CreateUser(ctx, user))

	// Mutating the caller's record or a returned record must not affect
	// stored state.
	user.FirstName = "changed"
	user.RefreshTokenIDs["web"] = "changed"

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "rt-1", got.RefreshTokenIDs["web"])

	got.RefreshTokenIDs["web"] = "also-changed"
	again, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "rt-1", again.RefreshTokenIDs["web"])
}

func TestMemoryStoreApplications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.UnixMilli(1700000000000).UTC()
	first := &Application{ID: "a1", UserID: "u1", Name: "reader", CreatedAt: base, UpdatedAt: base}
	second := &Application{ID: "a2", UserID: "u1", Name: "writer", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)}
	other := &Application{ID: "a3", UserID: "u2", Name: "theirs", CreatedAt: base, UpdatedAt: base}

	require.NoError(t, store.CreateApplication(ctx, second))
	require.NoError(t, store.CreateApplication(ctx, first))
	require.NoError(t, store.CreateApplication(ctx, other))

	apps, err := store.ListApplications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "a1", apps[0].ID)
	assert.Equal(t, "a2", apps[1].ID)

	first.Name = "renamed"
	require.NoError(t, store.UpdateApplication(ctx, first))
	got, err := store.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	err = store.UpdateApplication(ctx, &Application{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteApplicationCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.UnixMilli(1700000000000).UTC()
	app := &Application{ID: "a1", UserID: "u1", Name: "reader", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, store.CreateApplication(ctx, app))

	perm := token.Permission{Resource: token.ResourceBook, Access: []token.Access{token.AccessRead}, Own: true}
	tok := &ApplicationToken{ID: "t1", UserID: "u1", ApplicationID: "a1", Permissions: []token.Permission{perm}, CreatedAt: base}
	require.NoError(t, store.CreateApplicationToken(ctx, tok))

	keep := &ApplicationToken{ID: "t2", UserID: "u1", ApplicationID: "a2", CreatedAt: base}
	require.NoError(t, store.CreateApplicationToken(ctx, keep))

	require.NoError(t, store.DeleteApplication(ctx, "a1"))

	_, err := store.GetApplication(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetApplicationToken(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Tokens of other applications survive.
	_, err = store.GetApplicationToken(ctx, "t2")
	require.NoError(t, err)

	err = store.DeleteApplication(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreApplicationTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.UnixMilli(1700000000000).UTC()
	perm := token.Permission{Resource: token.ResourceBook, Access: []token.Access{token.AccessCreate, token.AccessDelete}, Own: true}
	first := &ApplicationToken{
		ID: "t1", UserID: "u1", ApplicationID: "a1",
		Permissions: []token.Permission{perm},
		ExpiresAt:   base.Add(24 * time.Hour),
		CreatedAt:   base,
	}
	second := &ApplicationToken{ID: "t2", UserID: "u1", ApplicationID: "a1", CreatedAt: base.Add(time.Second)}

	require.NoError(t, store.CreateApplicationToken(ctx, second))
	require.NoError(t, store.CreateApplicationToken(ctx, first))

	got, err := store.GetApplicationToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	toks, err := store.ListApplicationTokens(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "t1", toks[0].ID)
	assert.Equal(t, "t2", toks[1].ID)

	// Listing is scoped to the owner.
	toks, err = store.ListApplicationTokens(ctx, "someone-else", "a1")
	require.NoError(t, err)
	assert.Empty(t, toks)

	require.NoError(t, store.DeleteApplicationToken(ctx, "t1"))
	_, err = store.GetApplicationToken(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.DeleteApplicationToken(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}
