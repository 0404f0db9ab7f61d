// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package user implements account lifecycle: registration, credential
// checks, profile updates, activation, federated identity reconciliation
// and the master/refresh token id bookkeeping the token services build on.
package user

import (
	"context"
	crand "crypto/rand"
	goerrors "errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/notify"
	"github.com/keyfold/keyfold/pkg/storage"
)

const (
	maxAllowedNameLength = 50
	maxEmailLength       = 200
	minPasswordLength    = 8
	maxPasswordLength    = 100

	// tokenIDLength is the length of generated master/refresh token ids.
	tokenIDLength = 8
)

// passwordPattern is reported to clients when password validation fails.
const passwordPattern = `^(?=.*[0-9])(?=.*[A-Za-z])(?=\S+$).{8,}$`

// Auth providers a user record can originate from.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Service manages user accounts on top of a Store.
type Service struct {
	store    storage.Store
	hasher   Hasher
	notifier notify.Notifier

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

// NewService creates a user Service.
func NewService(store storage.Store, hasher Hasher, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the fields of a sign-up. Password is empty for
// federated registrations.
type CreateRequest struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	Provider        string
	ProfilePhotoURL string
}

// Create registers a new user. Local sign-ups must carry a password;
// federated registrations leave it empty.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*storage.User, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}

	var passwordHash string
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return nil, err
		}
		passwordHash, err = s.hasher.Hash(req.Password)
		if err != nil {
			return nil, errors.Internal("password.hashing", errors.WithCause(err))
		}
	}

	firstName, err := validateName(req.FirstName)
	if err != nil {
		return nil, err
	}
	var lastName string
	if req.LastName != "" {
		lastName, err = validateName(req.LastName)
		if err != nil {
			return nil, err
		}
	}

	provider := req.Provider
	if provider == "" {
		provider = ProviderLocal
	}

	now := s.now().UTC()
	user := &storage.User{
		ID:              s.newID(),
		FirstName:       firstName,
		LastName:        lastName,
		Email:           email,
		PasswordHash:    passwordHash,
		Active:          true,
		Provider:        provider,
		ProfilePhotoURL: req.ProfilePhotoURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if goerrors.Is(err, storage.ErrDuplicateEmail) {
			return nil, errors.Conflict("user.with.email.exists")
		}
		return nil, errors.Internal("user.creation", errors.WithCause(err))
	}

	s.notifier.UserRegistered(ctx, user)
	return user, nil
}

// FindByID returns the user with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (*storage.User, error) {
	return s.store.GetUser(ctx, id)
}

// FindByEmail returns the user registered under the normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*storage.User, error) {
	return s.store.GetUserByEmail(ctx, email)
}

// FindByEmailAndPassword returns the user only when the credentials check
// out. Unknown email, a federated account without a password, and a
// password mismatch are indistinguishable to the caller.
func (s *Service) FindByEmailAndPassword(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" || !s.hasher.Verify(user.PasswordHash, password) {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

// UpdateRequest carries profile fields for an update. Empty ProfilePhotoURL
// leaves the stored value untouched.
type UpdateRequest struct {
	FirstName       string
	LastName        string
	ProfilePhotoURL string
}

// Update validates and applies profile changes.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (*storage.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Input("user.not.found")
		}
		return nil, errors.Internal("user.lookup", errors.WithCause(err))
	}

	firstName, err := validateName(req.FirstName)
	if err != nil {
		return nil, err
	}
	var lastName string
	if req.LastName != "" {
		lastName, err = validateName(req.LastName)
		if err != nil {
			return nil, err
		}
	}

	user.FirstName = firstName
	user.LastName = lastName
	if req.ProfilePhotoURL != "" {
		user.ProfilePhotoURL = req.ProfilePhotoURL
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, errors.Internal("user.update", errors.WithCause(err))
	}
	return user, nil
}

// Activate switches an inactive user on and fires a notification. Already
// active users pass through unchanged.
func (s *Service) Activate(ctx context.Context, userID string) (*storage.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Input("user.not.found")
		}
		return nil, errors.Internal("user.lookup", errors.WithCause(err))
	}
	if user.Active {
		return user, nil
	}

	user.Active = true
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, errors.Internal("user.update", errors.WithCause(err))
	}

	s.notifier.UserActivated(ctx, user)
	return user, nil
}

// FederatedInfo carries the identity attributes asserted by an external
// auth provider.
type FederatedInfo struct {
	Email           string
	Name            string
	ProfilePhotoURL string
	Provider        string
}

// GetOrCreateFederated reconciles an externally authenticated identity
// with the user store. A new account is registered on first sight; an
// existing account is refreshed with the asserted name and photo, unless
// it belongs to a different provider.
func (s *Service) GetOrCreateFederated(ctx context.Context, info FederatedInfo) (*storage.User, error) {
	firstName, lastName := splitName(info.Name)

	existing, err := s.store.GetUserByEmail(ctx, info.Email)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return s.Create(ctx, CreateRequest{
				FirstName:       firstName,
				LastName:        lastName,
				Email:           info.Email,
				Provider:        info.Provider,
				ProfilePhotoURL: info.ProfilePhotoURL,
			})
		}
		return nil, errors.Internal("user.lookup", errors.WithCause(err))
	}

	if existing.Provider != info.Provider {
		return nil, errors.Authentication("auth.provider.invalid", errors.WithProperties(map[string]string{
			"provider.attempted": info.Provider,
			"provider.user":      existing.Provider,
		}))
	}
	return s.Update(ctx, existing.ID, UpdateRequest{
		FirstName:       firstName,
		LastName:        lastName,
		ProfilePhotoURL: info.ProfilePhotoURL,
	})
}

// UpdateMasterTokenID mints a fresh master token id for the user. Only the
// latest id is valid, so issuing a new master token revokes the previous
// one.
func (s *Service) UpdateMasterTokenID(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return "", errors.Input("user.not.found")
		}
		return "", errors.Internal("user.lookup", errors.WithCause(err))
	}

	masterTokenID, err := randomAlphanumeric(tokenIDLength)
	if err != nil {
		return "", errors.Internal("master.token.creation", errors.WithCause(err))
	}
	user.MasterTokenID = masterTokenID
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return "", errors.Internal("user.update", errors.WithCause(err))
	}
	return masterTokenID, nil
}

// RotateRefreshTokenID mints a fresh refresh token id for the given device
// key. Ids are tracked per device so signing in on one device does not
// invalidate sessions on another.
func (s *Service) RotateRefreshTokenID(ctx context.Context, userID, device string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return "", errors.Input("user.not.found")
		}
		return "", errors.Internal("user.lookup", errors.WithCause(err))
	}

	refreshTokenID, err := randomAlphanumeric(tokenIDLength)
	if err != nil {
		return "", errors.Internal("refresh.token.creation", errors.WithCause(err))
	}
	if user.RefreshTokenIDs == nil {
		user.RefreshTokenIDs = make(map[string]string)
	}
	user.RefreshTokenIDs[DeviceKey(device)] = refreshTokenID
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return "", errors.Internal("user.update", errors.WithCause(err))
	}
	return refreshTokenID, nil
}

// DeviceKey normalizes a User-Agent value into a stable per-device map key.
func DeviceKey(userAgent string) string {
	key := strings.ToLower(strings.TrimSpace(userAgent))
	if key == "" {
		return "default"
	}
	return key
}

func validateEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || len(normalized) >= maxEmailLength {
		return "", errors.Input("user.email.invalid")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", errors.Input("user.email.invalid")
	}
	return normalized, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.Input("password.too.short",
			errors.WithDescription(fmt.Sprintf("Password is too short. Must be at least %d characters.", minPasswordLength)))
	}
	if len(password) > maxPasswordLength {
		return errors.Input("password.too.long",
			errors.WithDescription(fmt.Sprintf("Password is too long. Must not be greater than %d characters.", maxPasswordLength)))
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return passwordPolicyFail()
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return passwordPolicyFail()
	}
	return nil
}

func passwordPolicyFail() error {
	return errors.Input("password.invalid",
		errors.WithDescription("Password validation failed. Must be at least 8 characters long. A digit and a letter must occur at least once. No whitespace allowed."),
		errors.WithProperties(map[string]string{"pattern": passwordPattern}))
}

func validateName(rawName string) (string, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return "", errors.Input("name.blank")
	}
	if utf8.RuneCountInString(name) >= maxAllowedNameLength {
		return "", errors.Input("name.too.long", errors.WithProperties(map[string]string{
			"max_allowed_name_length": strconv.Itoa(maxAllowedNameLength),
		}))
	}
	return name, nil
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[1]
	}
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomAlphanumeric returns n random characters drawn from [A-Za-z0-9]
// using crypto/rand.
func randomAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}
