// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore implements Store with in-memory maps. It is thread-safe and
// suitable for development, testing and single-instance deployments.
//
// Records are copied on the way in and out so callers can never mutate
// stored state through a returned pointer.
type MemoryStore struct {
	mu sync.RWMutex

	// users maps user id -> record; usersByEmail maps normalized email ->
	// user id and backs the uniqueness invariant.
	users        map[string]*User
	usersByEmail map[string]string

	// apps maps application id -> record.
	apps map[string]*Application

	// appTokens maps token id -> record. Lookups by (user, application)
	// scan; the collections involved are small per user.
	appTokens map[string]*ApplicationToken
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*User),
		usersByEmail: make(map[string]string),
		apps:         make(map[string]*Application),
		appTokens:    make(map[string]*ApplicationToken),
	}
}

func cloneUser(u *User) *User {
	c := *u
	c.RefreshTokenIDs = maps.Clone(u.RefreshTokenIDs)
	return &c
}

func cloneApplication(a *Application) *Application {
	c := *a
	return &c
}

func cloneApplicationToken(t *ApplicationToken) *ApplicationToken {
	c := *t
	c.Permissions = slices.Clone(t.Permissions)
	return &c
}

// CreateUser persists a new user, enforcing email uniqueness.
func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, taken := s.usersByEmail[email]; taken {
		return ErrDuplicateEmail
	}
	s.users[user.ID] = cloneUser(user)
	s.usersByEmail[email] = user.ID
	return nil
}

// GetUser returns the user with the given id.
func (s *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// GetUserByEmail returns the user with the given normalized email.
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

// UpdateUser replaces the stored user record. Last writer wins.
func (s *MemoryStore) UpdateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// CreateApplication persists a new application.
func (s *MemoryStore) CreateApplication(_ context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apps[app.ID] = cloneApplication(app)
	return nil
}

// GetApplication returns the application with the given id.
func (s *MemoryStore) GetApplication(_ context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApplication(a), nil
}

// ListApplications returns all applications owned by the user, ordered by
// creation time.
func (s *MemoryStore) ListApplications(_ context.Context, userID string) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Application
	for _, a := range s.apps {
		if a.UserID == userID {
			out = append(out, cloneApplication(a))
		}
	}
	sortByCreation(out, func(a *Application) (string, int64) { return a.ID, a.CreatedAt.UnixNano() })
	return out, nil
}

// UpdateApplication replaces the stored application record.
func (s *MemoryStore) UpdateApplication(_ context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app.ID]; !ok {
		return ErrNotFound
	}
	s.apps[app.ID] = cloneApplication(app)
	return nil
}

// DeleteApplication removes the application and all its token records.
func (s *MemoryStore) DeleteApplication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[id]; !ok {
		return ErrNotFound
	}
	delete(s.apps, id)
	for tokenID, t := range s.appTokens {
		if t.ApplicationID == id {
			delete(s.appTokens, tokenID)
		}
	}
	return nil
}

// CreateApplicationToken persists a new application-token record.
func (s *MemoryStore) CreateApplicationToken(_ context.Context, tok *ApplicationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appTokens[tok.ID] = cloneApplicationToken(tok)
	return nil
}

// GetApplicationToken returns the application token with the given id.
func (s *MemoryStore) GetApplicationToken(_ context.Context, id string) (*ApplicationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.appTokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApplicationToken(t), nil
}

// ListApplicationTokens returns all token records for the owner and
// application, ordered by creation time.
func (s *MemoryStore) ListApplicationTokens(_ context.Context, userID, applicationID string) ([]*ApplicationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ApplicationToken
	for _, t := range s.appTokens {
		if t.UserID == userID && t.ApplicationID == applicationID {
			out = append(out, cloneApplicationToken(t))
		}
	}
	sortByCreation(out, func(t *ApplicationToken) (string, int64) { return t.ID, t.CreatedAt.UnixNano() })
	return out, nil
}

// DeleteApplicationToken removes a single application-token record.
func (s *MemoryStore) DeleteApplicationToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appTokens[id]; !ok {
		return ErrNotFound
	}
	delete(s.appTokens, id)
	return nil
}

// Ping always succeeds for the in-memory store.
func (*MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (*MemoryStore) Close() error {
	return nil
}

// sortByCreation orders records by creation time, breaking ties by id so
// listings are deterministic.
func sortByCreation[T any](items []T, key func(T) (string, int64)) {
	slices.SortFunc(items, func(a, b T) int {
		aID, aAt := key(a)
		bID, bAt := key(b)
		if aAt != bAt {
			if aAt < bAt {
				return -1
			}
			return 1
		}
		return strings.Compare(aID, bID)
	})
}
