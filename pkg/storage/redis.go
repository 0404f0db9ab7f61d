// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyfold/keyfold/pkg/token"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Key type segments. Keys are "<prefix><type>:<id>"; index sets are
// "<prefix><type>:<id>:set".
const (
	keyTypeUser      = "user"
	keyTypeEmail     = "email"
	keyTypeApp       = "app"
	keyTypeAppToken  = "apptoken"
	keyTypeUserApps  = "user:apps"
	keyTypeAppTokens = "app:tokens"
)

// RedisConfig holds Redis connection configuration for runtime use.
type RedisConfig struct {
	// Addr is the Redis server address, host:port.
	Addr string

	// Username and Password are optional ACL credentials.
	Username string
	Password string

	// DB selects the logical database.
	DB int

	// KeyPrefix namespaces all keys, e.g. "keyfold:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on a Redis backend, enabling horizontal
// scaling. Records are stored as JSON values; ownership listings are backed
// by secondary index sets.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates Redis-backed storage and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Ping checks that the Redis server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(keyType, id string) string {
	return s.keyPrefix + keyType + ":" + id
}

func (s *RedisStore) setKey(keyType, id string) string {
	return s.keyPrefix + keyType + ":" + id + ":set"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// -----------------------
// Users
// -----------------------

// storedUser is the serialized user record.
type storedUser struct {
	ID              string            `json:"id"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name,omitempty"`
	Email           string            `json:"email"`
	PasswordHash    string            `json:"password_hash,omitempty"`
	Active          bool              `json:"active"`
	Provider        string            `json:"provider,omitempty"`
	ProfilePhotoURL string            `json:"profile_photo_url,omitempty"`
	MasterTokenID   string            `json:"master_token_id,omitempty"`
	RefreshTokenIDs map[string]string `json:"refresh_token_ids,omitempty"`
	CreatedAt       int64             `json:"created_at"`
	UpdatedAt       int64             `json:"updated_at"`
}

func toStoredUser(u *User) storedUser {
	return storedUser{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Active:          u.Active,
		Provider:        u.Provider,
		ProfilePhotoURL: u.ProfilePhotoURL,
		MasterTokenID:   u.MasterTokenID,
		RefreshTokenIDs: u.RefreshTokenIDs,
		CreatedAt:       u.CreatedAt.UnixMilli(),
		UpdatedAt:       u.UpdatedAt.UnixMilli(),
	}
}

func fromStoredUser(stored storedUser) *User {
	return &User{
		ID:              stored.ID,
		FirstName:       stored.FirstName,
		LastName:        stored.LastName,
		Email:           stored.Email,
		PasswordHash:    stored.PasswordHash,
		Active:          stored.Active,
		Provider:        stored.Provider,
		ProfilePhotoURL: stored.ProfilePhotoURL,
		MasterTokenID:   stored.MasterTokenID,
		RefreshTokenIDs: stored.RefreshTokenIDs,
		CreatedAt:       time.UnixMilli(stored.CreatedAt).UTC(),
		UpdatedAt:       time.UnixMilli(stored.UpdatedAt).UTC(),
	}
}

// CreateUser persists a new user, enforcing email uniqueness.
func (s *RedisStore) CreateUser(ctx context.Context, user *User) error {
	emailKey := s.key(keyTypeEmail, normalizeEmail(user.Email))

	// Claim the email index first. SetNX gives atomic check-and-set so two
	// concurrent registrations cannot both win.
	claimed, err := s.client.SetNX(ctx, emailKey, user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !claimed {
		return ErrDuplicateEmail
	}

	data, err := json.Marshal(toStoredUser(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := s.client.Set(ctx, s.key(keyTypeUser, user.ID), data, 0).Err(); err != nil {
		// Compensating transaction: release the email claim.
		_ = s.client.Del(ctx, emailKey).Err()
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *RedisStore) GetUser(ctx context.Context, id string) (*User, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeUser, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var stored storedUser
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return fromStoredUser(stored), nil
}

// GetUserByEmail retrieves a user through the email index.
func (s *RedisStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	id, err := s.client.Get(ctx, s.key(keyTypeEmail, normalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve email: %w", err)
	}
	return s.GetUser(ctx, id)
}

// UpdateUser replaces the stored user record. The email is immutable once
// registered, so the email index is left untouched.
func (s *RedisStore) UpdateUser(ctx context.Context, user *User) error {
	key := s.key(keyTypeUser, user.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(toStoredUser(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// -----------------------
// Applications
// -----------------------

// storedApplication is the serialized application record.
type storedApplication struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func fromStoredApplication(stored storedApplication) *Application {
	return &Application{
		ID:        stored.ID,
		UserID:    stored.UserID,
		Name:      stored.Name,
		CreatedAt: time.UnixMilli(stored.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(stored.UpdatedAt).UTC(),
	}
}

// CreateApplication persists a new application and indexes it under its
// owner.
func (s *RedisStore) CreateApplication(ctx context.Context, app *Application) error {
	stored := storedApplication{
		ID:        app.ID,
		UserID:    app.UserID,
		Name:      app.Name,
		CreatedAt: app.CreatedAt.UnixMilli(),
		UpdatedAt: app.UpdatedAt.UnixMilli(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	key := s.key(keyTypeApp, app.ID)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store application: %w", err)
	}

	// Secondary index for owner listings. If the index write fails, delete
	// the record to prevent orphaned applications.
	ownerKey := s.setKey(keyTypeUserApps, app.UserID)
	if err := s.client.SAdd(ctx, ownerKey, app.ID).Err(); err != nil {
		_ = s.client.Del(ctx, key).Err()
		return fmt.Errorf("failed to index application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application by id.
func (s *RedisStore) GetApplication(ctx context.Context, id string) (*Application, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeApp, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	var stored storedApplication
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application: %w", err)
	}
	return fromStoredApplication(stored), nil
}

// ListApplications returns all applications owned by the user, ordered by
// creation time.
func (s *RedisStore) ListApplications(ctx context.Context, userID string) ([]*Application, error) {
	ownerKey := s.setKey(keyTypeUserApps, userID)
	ids, err := s.client.SMembers(ctx, ownerKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	var out []*Application
	for _, id := range ids {
		app, err := s.GetApplication(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Record was deleted, clean up the index lazily.
				_ = s.client.SRem(ctx, ownerKey, id).Err()
				continue
			}
			return nil, err
		}
		out = append(out, app)
	}
	sortByCreation(out, func(a *Application) (string, int64) { return a.ID, a.CreatedAt.UnixNano() })
	return out, nil
}

// UpdateApplication replaces the stored application record.
func (s *RedisStore) UpdateApplication(ctx context.Context, app *Application) error {
	key := s.key(keyTypeApp, app.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check application existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	stored := storedApplication{
		ID:        app.ID,
		UserID:    app.UserID,
		Name:      app.Name,
		CreatedAt: app.CreatedAt.UnixMilli(),
		UpdatedAt: app.UpdatedAt.UnixMilli(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// DeleteApplication removes the application and cascades to its token
// records.
func (s *RedisStore) DeleteApplication(ctx context.Context, id string) error {
	app, err := s.GetApplication(ctx, id)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.key(keyTypeApp, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	_ = s.client.SRem(ctx, s.setKey(keyTypeUserApps, app.UserID), id).Err()

	// Cascade: drop every token issued for this application.
	tokensKey := s.setKey(keyTypeAppTokens, id)
	tokenIDs, err := s.client.SMembers(ctx, tokensKey).Result()
	if err == nil {
		for _, tokenID := range tokenIDs {
			_ = s.client.Del(ctx, s.key(keyTypeAppToken, tokenID)).Err()
		}
		_ = s.client.Del(ctx, tokensKey).Err()
	}
	return nil
}

// -----------------------
// Application tokens
// -----------------------

// storedApplicationToken is the serialized token record. Permissions keep
// their compact wire encoding.
type storedApplicationToken struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	ApplicationID string   `json:"application_id"`
	Permissions   []string `json:"permissions,omitempty"`
	ExpiresAt     int64    `json:"expires_at,omitempty"`
	CreatedAt     int64    `json:"created_at"`
}

// CreateApplicationToken persists a new token record and indexes it under
// its application.
func (s *RedisStore) CreateApplicationToken(ctx context.Context, tok *ApplicationToken) error {
	stored := storedApplicationToken{
		ID:            tok.ID,
		UserID:        tok.UserID,
		ApplicationID: tok.ApplicationID,
		CreatedAt:     tok.CreatedAt.UnixMilli(),
	}
	for _, p := range tok.Permissions {
		stored.Permissions = append(stored.Permissions, p.Encode())
	}
	if !tok.ExpiresAt.IsZero() {
		stored.ExpiresAt = tok.ExpiresAt.UnixMilli()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal application token: %w", err)
	}

	key := s.key(keyTypeAppToken, tok.ID)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store application token: %w", err)
	}

	appKey := s.setKey(keyTypeAppTokens, tok.ApplicationID)
	if err := s.client.SAdd(ctx, appKey, tok.ID).Err(); err != nil {
		_ = s.client.Del(ctx, key).Err()
		return fmt.Errorf("failed to index application token: %w", err)
	}
	return nil
}

// GetApplicationToken retrieves a token record by id.
func (s *RedisStore) GetApplicationToken(ctx context.Context, id string) (*ApplicationToken, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeAppToken, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application token: %w", err)
	}

	var stored storedApplicationToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application token: %w", err)
	}

	tok := &ApplicationToken{
		ID:            stored.ID,
		UserID:        stored.UserID,
		ApplicationID: stored.ApplicationID,
		CreatedAt:     time.UnixMilli(stored.CreatedAt).UTC(),
	}
	if stored.ExpiresAt != 0 {
		tok.ExpiresAt = time.UnixMilli(stored.ExpiresAt).UTC()
	}
	for _, encoded := range stored.Permissions {
		perm, err := token.DecodePermission(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored permission %q: %w", encoded, err)
		}
		tok.Permissions = append(tok.Permissions, perm)
	}
	return tok, nil
}

// ListApplicationTokens returns all token records for the owner and
// application, ordered by creation time.
func (s *RedisStore) ListApplicationTokens(ctx context.Context, userID, applicationID string) ([]*ApplicationToken, error) {
	appKey := s.setKey(keyTypeAppTokens, applicationID)
	ids, err := s.client.SMembers(ctx, appKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list application tokens: %w", err)
	}

	var out []*ApplicationToken
	for _, id := range ids {
		tok, err := s.GetApplicationToken(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				_ = s.client.SRem(ctx, appKey, id).Err()
				continue
			}
			return nil, err
		}
		if tok.UserID != userID {
			continue
		}
		out = append(out, tok)
	}
	sortByCreation(out, func(t *ApplicationToken) (string, int64) { return t.ID, t.CreatedAt.UnixNano() })
	return out, nil
}

// DeleteApplicationToken removes a single token record.
func (s *RedisStore) DeleteApplicationToken(ctx context.Context, id string) error {
	tok, err := s.GetApplicationToken(ctx, id)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.key(keyTypeAppToken, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete application token: %w", err)
	}
	_ = s.client.SRem(ctx, s.setKey(keyTypeAppTokens, tok.ApplicationID), id).Err()
	return nil
}

// Compile-time interface compliance checks
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
