// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the persistence interfaces and implementations
// for keyfold's user, application and application-token records.
//
// Two backends are provided: an in-memory store suitable for development,
// testing and single-instance deployments, and a Redis store for
// distributed deployments. Both are safe for concurrent use. Concurrent
// writers to the same user record race last-writer-wins; keyfold accepts
// this for token-id rotation, where the intent is "invalidate everything
// previous" anyway.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/keyfold/keyfold/pkg/token"
)

// Storage sentinel errors.
var (
	// ErrNotFound is returned when no record exists for the given key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when creating a user whose normalized
	// email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// User is the persisted identity record. Email is stored trimmed and
// lowercased and is unique across all users.
type User struct {
	ID              string            `json:"id"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name,omitempty"`
	Email           string            `json:"email"`
	PasswordHash    string            `json:"password_hash,omitempty"`
	Active          bool              `json:"active"`
	Provider        string            `json:"provider"`
	ProfilePhotoURL string            `json:"profile_photo_url,omitempty"`
	MasterTokenID   string            `json:"master_token_id,omitempty"`
	RefreshTokenIDs map[string]string `json:"refresh_token_ids,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Application is a persisted application record owned by exactly one user.
type Application struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplicationToken is the persisted grant record backing a scoped bearer
// token. Deleting the record revokes the bearer token at validation time.
type ApplicationToken struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	ApplicationID string             `json:"application_id"`
	Permissions   []token.Permission `json:"permissions"`
	ExpiresAt     time.Time          `json:"expires_at,omitzero"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Store is the persistence boundary consumed by the lifecycle services and
// the authorization decision engine. Implementations return ErrNotFound for
// missing records; ownership checks belong to the callers.
type Store interface {
	// CreateUser persists a new user. Returns ErrDuplicateEmail when the
	// normalized email is already registered.
	CreateUser(ctx context.Context, user *User) error

	// GetUser returns the user with the given id.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail returns the user with the given normalized email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser replaces the stored user record.
	UpdateUser(ctx context.Context, user *User) error

	// CreateApplication persists a new application.
	CreateApplication(ctx context.Context, app *Application) error

	// GetApplication returns the application with the given id.
	GetApplication(ctx context.Context, id string) (*Application, error)

	// ListApplications returns all applications owned by the user, ordered
	// by creation time.
	ListApplications(ctx context.Context, userID string) ([]*Application, error)

	// UpdateApplication replaces the stored application record.
	UpdateApplication(ctx context.Context, app *Application) error

	// DeleteApplication removes the application and cascades deletion of
	// all its application tokens.
	DeleteApplication(ctx context.Context, id string) error

	// CreateApplicationToken persists a new application-token record.
	CreateApplicationToken(ctx context.Context, tok *ApplicationToken) error

	// GetApplicationToken returns the application token with the given id.
	GetApplicationToken(ctx context.Context, id string) (*ApplicationToken, error)

	// ListApplicationTokens returns all token records for the given owner
	// and application, ordered by creation time.
	ListApplicationTokens(ctx context.Context, userID, applicationID string) ([]*ApplicationToken, error)

	// DeleteApplicationToken removes a single application-token record.
	DeleteApplicationToken(ctx context.Context, id string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
