// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/notify"
	"github.com/keyfold/keyfold/pkg/storage"
)

// plainHasher avoids bcrypt's cost in tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "h:" + password, nil }
func (plainHasher) Verify(hash, password string) bool    { return hash == "h:"+password }

type recordingNotifier struct {
	registered []string
	activated  []string
}

func (n *recordingNotifier) UserRegistered(_ context.Context, u *storage.User) {
	n.registered = append(n.registered, u.ID)
}

func (n *recordingNotifier) UserActivated(_ context.Context, u *storage.User) {
	n.activated = append(n.activated, u.ID)
}

func assertFailType(t *testing.T, err error, wantType string) {
	t.Helper()
	var fail *errors.Fail
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, wantType, fail.Type)
}

func newTestService(t *testing.T, opts ...Option) (*Service, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	base := []Option{
		WithClock(func() time.Time { return time.UnixMilli(1700000000000).UTC() }),
	}
	svc := NewService(store, plainHasher{}, notify.NopNotifier{}, append(base, opts...)...)
	return svc, store
}

func validCreateRequest() CreateRequest {
	return CreateRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com ",
		Password:  "secret1234",
	}
}

func TestCreateUser(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	user, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, "Lovelace", user.LastName)
	assert.Equal(t, "ada@example.com", user.Email, "email is normalized")
	assert.Equal(t, "h:secret1234", user.PasswordHash)
	assert.True(t, user.Active)
	assert.Equal(t, ProviderLocal, user.Provider)

	got, err := svc.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()

	longName := make([]byte, 60)
	for i := range longName {
		longName[i] = 'x'
	}

	tests := []struct {
		name     string
		mutate   func(*CreateRequest)
		wantType string
	}{
		{
			name:     "invalid email",
			mutate:   func(r *CreateRequest) { r.Email = "not-an-email" },
			wantType: "fail.input.user.email.invalid",
		},
		{
			name:     "blank email",
			mutate:   func(r *CreateRequest) { r.Email = "   " },
			wantType: "fail.input.user.email.invalid",
		},
		{
			name:     "short password",
			mutate:   func(r *CreateRequest) { r.Password = "a1" },
			wantType: "fail.input.password.too.short",
		},
		{
			name:     "letters only password",
			mutate:   func(r *CreateRequest) { r.Password = "abcdefghij" },
			wantType: "fail.input.password.invalid",
		},
		{
			name:     "digits only password",
			mutate:   func(r *CreateRequest) { r.Password = "1234567890" },
			wantType: "fail.input.password.invalid",
		},
		{
			name:     "whitespace in password",
			mutate:   func(r *CreateRequest) { r.Password = "abc 1234def" },
			wantType: "fail.input.password.invalid",
		},
		{
			name:     "blank first name",
			mutate:   func(r *CreateRequest) { r.FirstName = "  " },
			wantType: "fail.input.name.blank",
		},
		{
			name:     "first name too long",
			mutate:   func(r *CreateRequest) { r.FirstName = string(longName) },
			wantType: "fail.input.name.too.long",
		},
		{
			name:     "last name too long",
			mutate:   func(r *CreateRequest) { r.LastName = string(longName) },
			wantType: "fail.input.name.too.long",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newTestService(t)

			req := validCreateRequest()
			tt.mutate(&req)

			_, err := svc.Create(context.Background(), req)
			assertFailType(t, err, tt.wantType)
		})
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)

	req := validCreateRequest()
	req.Email = "ADA@example.com"
	_, err = svc.Create(context.Background(), req)
	assertFailType(t, err, "fail.conflict.user.with.email.exists")
}

func TestCreateUserFiresNotification(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, plainHasher{}, notifier)

	user, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, notifier.registered)
}

func TestFindByEmailAndPassword(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	got, err := svc.FindByEmailAndPassword(ctx, "ada@example.com", "secret1234")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.FindByEmailAndPassword(ctx, "ada@example.com", "wrong-pass1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.FindByEmailAndPassword(ctx, "nobody@example.com", "secret1234")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindByEmailAndPasswordFederatedAccount(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := validCreateRequest()
	req.Password = ""
	req.Provider = ProviderGoogle
	_, err := svc.Create(ctx, req)
	require.NoError(t, err)

	// Accounts without a password can never sign in with one.
	_, err = svc.FindByEmailAndPassword(ctx, "ada@example.com", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, UpdateRequest{FirstName: " Grace ", LastName: "Hopper"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", updated.FirstName)
	assert.Equal(t, "Hopper", updated.LastName)

	_, err = svc.Update(ctx, created.ID, UpdateRequest{FirstName: "  "})
	assertFailType(t, err, "fail.input.name.blank")

	_, err = svc.Update(ctx, "missing", UpdateRequest{FirstName: "Grace"})
	assertFailType(t, err, "fail.input.user.not.found")
}

func TestActivate(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, plainHasher{}, notifier)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	created.Active = false
	require.NoError(t, store.UpdateUser(ctx, created))

	activated, err := svc.Activate(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)
	assert.Equal(t, []string{created.ID}, notifier.activated)

	// Re-activating is a no-op and fires no second event.
	_, err = svc.Activate(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, notifier.activated, 1)

	_, err = svc.Activate(ctx, "missing")
	assertFailType(t, err, "fail.input.user.not.found")
}

func TestGetOrCreateFederated(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	info := FederatedInfo{
		Email:           "ada@example.com",
		Name:            "Ada Lovelace",
		ProfilePhotoURL: "https://photos.example.com/ada.png",
		Provider:        ProviderGoogle,
	}

	created, err := svc.GetOrCreateFederated(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, "Ada", created.FirstName)
	assert.Equal(t, "Lovelace", created.LastName)
	assert.Equal(t, ProviderGoogle, created.Provider)
	assert.Empty(t, created.PasswordHash)

	// Second sight updates the profile in place.
	info.Name = "Ada King"
	again, err := svc.GetOrCreateFederated(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "King", again.LastName)
}

func TestGetOrCreateFederatedProviderMismatch(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	_, err = svc.GetOrCreateFederated(ctx, FederatedInfo{
		Email:    "ada@example.com",
		Name:     "Ada Lovelace",
		Provider: ProviderGoogle,
	})
	assertFailType(t, err, "fail.authentication.auth.provider.invalid")
}

func TestUpdateMasterTokenID(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	first, err := svc.UpdateMasterTokenID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, first, 8)

	second, err := svc.UpdateMasterTokenID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "issuing a new id revokes the previous one")

	stored, err := store.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, second, stored.MasterTokenID)

	_, err = svc.UpdateMasterTokenID(ctx, "missing")
	assertFailType(t, err, "fail.input.user.not.found")
}

func TestRotateRefreshTokenID(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	web, err := svc.RotateRefreshTokenID(ctx, created.ID, "Mozilla/5.0")
	require.NoError(t, err)
	cli, err := svc.RotateRefreshTokenID(ctx, created.ID, "curl/8.0")
	require.NoError(t, err)

	stored, err := store.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, web, stored.RefreshTokenIDs["mozilla/5.0"])
	assert.Equal(t, cli, stored.RefreshTokenIDs["curl/8.0"])

	// Rotating one device leaves the other session intact.
	webNext, err := svc.RotateRefreshTokenID(ctx, created.ID, "Mozilla/5.0")
	require.NoError(t, err)
	stored, err = store.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, webNext, stored.RefreshTokenIDs["mozilla/5.0"])
	assert.Equal(t, cli, stored.RefreshTokenIDs["curl/8.0"])
}

func TestDeviceKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "default", DeviceKey(""))
	assert.Equal(t, "default", DeviceKey("   "))
	assert.Equal(t, "curl/8.0", DeviceKey(" Curl/8.0 "))
}
