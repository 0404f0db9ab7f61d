// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/pkg/token"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, "keyfold:test:")
}

func TestRedisStorePing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStoreWithClient(client, "keyfold:test:")

	require.NoError(t, store.Ping(ctx))

	mr.Close()
	assert.Error(t, store.Ping(ctx))
}

func TestRedisStoreUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestRedisStore(t)

	user := testUser("u1", "ada@example.com")
	user.RefreshTokenIDs = map[string]string{"web": "rt-1"}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	got, err = store.GetUserByEmail(ctx, " Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	err = store.CreateUser(ctx, testUser("u2", "ada@example.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUpdateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestRedisStore(t)

	user := testUser("u1", "ada@example.com")
	require.NoError(t, store.CreateUser(ctx, user))

	user.Active = false
	user.MasterTokenID = "mt-1"
	require.NoError(t, store.UpdateUser(ctx, user))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "mt-1", got.MasterTokenID)

	err = store.UpdateUser(ctx, testUser("ghost", "ghost@example.com"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreApplications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestRedisStore(t)

	base := time.UnixMilli(1700000000000).UTC()
	first := &Application{ID: "a1", UserID: "u1", Name: "reader", CreatedAt: base, UpdatedAt: base}
	second := &Application{ID: "a2", UserID: "u1", Name: "writer", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)}

	require.NoError(t, store.CreateApplication(ctx, second))
	require.NoError(t, store.CreateApplication(ctx, first))

	got, err := store.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	apps, err := store.ListApplications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "a1", apps[0].ID)
	assert.Equal(t, "a2", apps[1].ID)

	first.Name = "renamed"
	first.UpdatedAt = base.Add(2 * time.Minute)
	require.NoError(t, store.UpdateApplication(ctx, first))
	got, err = store.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	err = store.UpdateApplication(ctx, &Application{ID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreDeleteApplicationCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestRedisStore(t)

	base := time.UnixMilli(1700000000000).UTC()
	require.NoError(t, store.CreateApplication(ctx, &Application{ID: "a1", UserID: "u1", Name: "reader", CreatedAt: base, UpdatedAt: base}))

	perm := token.Permission{Resource: token.ResourceTodo, Access: []token.Access{token.AccessRead, token.AccessUpdate}, Own: true}
	require.NoError(t, store.CreateApplicationToken(ctx, &ApplicationToken{
		ID: "t1", UserID: "u1", ApplicationID: "a1",
		Permissions: []token.Permission{perm},
		CreatedAt:   base,
	}))
	require.NoError(t, store.CreateApplicationToken(ctx, &ApplicationToken{
		ID: "t2", UserID: "u1", ApplicationID: "a2", CreatedAt: base,
	}))

	require.NoError(t, store.DeleteApplication(ctx, "a1"))

	_, err := store.GetApplication(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetApplicationToken(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetApplicationToken(ctx, "t2")
	require.NoError(t, err)

	apps, err := store.ListApplications(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestRedisStoreApplicationTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestRedisStore(t)

	base := time.UnixMilli(1700000000000).UTC()
	perm := token.Permission{Resource: token.ResourceBook, Access: []token.Access{token.AccessCreate, token.AccessDelete}, Own: false}
	tok := &ApplicationToken{
		ID: "t1", UserID: "u1", ApplicationID: "a1",
		Permissions: []token.Permission{perm},
		ExpiresAt:   base.Add(24 * time.Hour),
		CreatedAt:   base,
	}
	require.NoError(t, store.CreateApplicationToken(ctx, tok))

	// Round-trips through JSON keep the permission encoding intact.
	got, err := store.GetApplicationToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	toks, err := store.ListApplicationTokens(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Len(t, toks, 1)

	toks, err = store.ListApplicationTokens(ctx, "someone-else", "a1")
	require.NoError(t, err)
	assert.Empty(t, toks)

	require.NoError(t, store.DeleteApplicationToken(ctx, "t1"))
	_, err = store.GetApplicationToken(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.DeleteApplicationToken(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}
