// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package application manages third-party applications registered by users
// and the scoped token records issued to them. All operations are scoped to
// the owning user; a lookup with the wrong owner behaves exactly like a
// missing record.
package application

import (
	"context"
	goerrors "errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/token"
)

const maxApplicationNameLength = 100

// expirationGrace is the minimum distance into the future a requested token
// expiration must have. Compensates for clock skew between client and
// server.
const expirationGrace = 5 * time.Second

// Service manages applications on top of a Store.
type Service struct {
	store storage.Store

	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides entity id generation. Used in tests.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService creates an application Service.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new application for the user.
func (s *Service) Create(ctx context.Context, userID, name string) (*storage.Application, error) {
	validName, err := validateApplicationName(name)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app := &storage.Application{
		ID:        s.newID(),
		UserID:    userID,
		Name:      validName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, errors.Internal("application.creation", errors.WithCause(err))
	}
	return app, nil
}

// Get returns the application only when it belongs to the user.
func (s *Service) Get(ctx context.Context, userID, applicationID string) (*storage.Application, error) {
	return s.findOwned(ctx, userID, applicationID)
}

// List returns all applications owned by the user.
func (s *Service) List(ctx context.Context, userID string) ([]*storage.Application, error) {
	apps, err := s.store.ListApplications(ctx, userID)
	if err != nil {
		return nil, errors.Internal("application.listing", errors.WithCause(err))
	}
	return apps, nil
}

// Update renames an owned application.
func (s *Service) Update(ctx context.Context, userID, applicationID, name string) (*storage.Application, error) {
	validName, err := validateApplicationName(name)
	if err != nil {
		return nil, err
	}
	app, err := s.findOwned(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}

	app.Name = validName
	app.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateApplication(ctx, app); err != nil {
		return nil, errors.Internal("application.update", errors.WithCause(err))
	}
	return app, nil
}

// Delete removes an owned application. Token records issued for it are
// deleted in the same operation, so outstanding bearer strings die with it.
func (s *Service) Delete(ctx context.Context, userID, applicationID string) (*storage.Application, error) {
	app, err := s.findOwned(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteApplication(ctx, applicationID); err != nil {
		return nil, errors.Internal("application.deletion", errors.WithCause(err))
	}
	return app, nil
}

func (s *Service) findOwned(ctx context.Context, userID, applicationID string) (*storage.Application, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Resource("application.not.found")
		}
		return nil, errors.Internal("application.lookup", errors.WithCause(err))
	}
	if app.UserID != userID {
		return nil, errors.Resource("application.not.found")
	}
	return app, nil
}

func validateApplicationName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.Input("application.name.empty")
	}
	if utf8.RuneCountInString(trimmed) > maxApplicationNameLength {
		return "", errors.Input("application.name.too.long", errors.WithProperties(map[string]string{
			"max_application_name_length": strconv.Itoa(maxApplicationNameLength),
		}))
	}
	return trimmed, nil
}

// TokenService manages the persisted token records of applications. The
// records double as a revocation list: deleting one invalidates every
// bearer string minted from it.
type TokenService struct {
	store storage.Store
	apps  *Service

	now   func() time.Time
	newID func() string
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source. Used in tests.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithTokenIDGenerator overrides record id generation. Used in tests.
func WithTokenIDGenerator(newID func() string) TokenOption {
	return func(s *TokenService) {
		s.newID = newID
	}
}

// NewTokenService creates a TokenService.
func NewTokenService(store storage.Store, apps *Service, opts ...TokenOption) *TokenService {
	s := &TokenService{
		store: store,
		apps:  apps,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTokenRequest carries the fields of a token-record creation.
// Permissions are in wire encoding; ExpiresAt zero means no expiration.
type CreateTokenRequest struct {
	Permissions []string
	ExpiresAt   time.Time
}

// Create validates and persists a new token record under an owned
// application. A requested expiration must be at least five seconds in the
// future.
func (s *TokenService) Create(ctx context.Context, userID, applicationID string, req CreateTokenRequest) (*storage.ApplicationToken, error) {
	if _, err := s.apps.Get(ctx, userID, applicationID); err != nil {
		return nil, err
	}

	if !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(s.now().Add(expirationGrace)) {
		return nil, errors.Input("expiration.time.invalid")
	}

	var permissions []token.Permission
	for _, encoded := range req.Permissions {
		perm, err := token.DecodePermission(encoded)
		if err != nil {
			return nil, errors.Input("permission.invalid", errors.WithCause(err), errors.WithProperties(map[string]string{
				"permission": encoded,
			}))
		}
		permissions = append(permissions, perm)
	}

	record := &storage.ApplicationToken{
		ID:            s.newID(),
		UserID:        userID,
		ApplicationID: applicationID,
		Permissions:   permissions,
		CreatedAt:     s.now().UTC(),
	}
	if !req.ExpiresAt.IsZero() {
		record.ExpiresAt = req.ExpiresAt.UTC()
	}
	if err := s.store.CreateApplicationToken(ctx, record); err != nil {
		return nil, errors.Internal("token.creation", errors.WithCause(err))
	}
	return record, nil
}

// List returns all token records of an owned application.
func (s *TokenService) List(ctx context.Context, userID, applicationID string) ([]*storage.ApplicationToken, error) {
	if _, err := s.apps.Get(ctx, userID, applicationID); err != nil {
		return nil, err
	}
	records, err := s.store.ListApplicationTokens(ctx, userID, applicationID)
	if err != nil {
		return nil, errors.Internal("token.listing", errors.WithCause(err))
	}
	return records, nil
}

// Get returns the token record only when it belongs to the (user,
// application) pair. Any mismatch reads as not found.
func (s *TokenService) Get(ctx context.Context, userID, applicationID, tokenID string) (*storage.ApplicationToken, error) {
	record, err := s.store.GetApplicationToken(ctx, tokenID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Resource("token.not.found")
		}
		return nil, errors.Internal("token.lookup", errors.WithCause(err))
	}
	if record.UserID != userID || record.ApplicationID != applicationID {
		return nil, errors.Resource("token.not.found")
	}
	return record, nil
}

// Delete removes an owned token record, revoking its bearer strings.
func (s *TokenService) Delete(ctx context.Context, userID, applicationID, tokenID string) error {
	if _, err := s.Get(ctx, userID, applicationID, tokenID); err != nil {
		return err
	}
	if err := s.store.DeleteApplicationToken(ctx, tokenID); err != nil {
		return errors.Internal("token.deletion", errors.WithCause(err))
	}
	return nil
}
