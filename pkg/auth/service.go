// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth composes the user service, the token services, the signer
// and the decision engine into the operations the HTTP surface exposes:
// sign-in, token refresh, master and application token issuance, and
// request validation.
package auth

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/keyfold/keyfold/pkg/application"
	"github.com/keyfold/keyfold/pkg/authz"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/token"
	"github.com/keyfold/keyfold/pkg/user"
)

// Default token lifetimes.
const (
	// DefaultSessionLifetime is how long a UI session token lives.
	DefaultSessionLifetime = 10 * time.Minute

	// DefaultRefreshDelta is how much longer than its session token a
	// refresh token lives.
	DefaultRefreshDelta = 30 * 24 * time.Hour
)

// TokenPair is the outcome of a sign-in or refresh: a short-lived session
// token and the refresh token that can mint the next pair.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Service implements the authentication and token-issuance flows.
type Service struct {
	users  *user.Service
	tokens *application.TokenService
	signer *token.Signer
	engine *authz.Authorizer

	sessionLifetime time.Duration
	refreshDelta    time.Duration
	now             func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithSessionLifetime overrides the UI session token lifetime.
func WithSessionLifetime(d time.Duration) Option {
	return func(s *Service) {
		s.sessionLifetime = d
	}
}

// WithRefreshDelta overrides how much longer refresh tokens live than their
// session tokens.
func WithRefreshDelta(d time.Duration) Option {
	return func(s *Service) {
		s.refreshDelta = d
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the auth Service.
func NewService(
	users *user.Service,
	tokens *application.TokenService,
	signer *token.Signer,
	engine *authz.Authorizer,
	opts ...Option,
) *Service {
	s := &Service{
		users:           users,
		tokens:          tokens,
		signer:          signer,
		engine:          engine,
		sessionLifetime: DefaultSessionLifetime,
		refreshDelta:    DefaultRefreshDelta,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn checks the credentials and issues a fresh session/refresh token
// pair bound to the calling device.
func (s *Service) SignIn(ctx context.Context, email, password, device string) (TokenPair, error) {
	u, err := s.users.FindByEmailAndPassword(ctx, email, password)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return TokenPair{}, errors.Authentication("user.not.found.by.credentials")
		}
		return TokenPair{}, errors.Internal("user.lookup", errors.WithCause(err))
	}
	if !u.Active {
		return TokenPair{}, errors.Authorization("user.inactive")
	}
	return s.issuePair(ctx, u.ID, device)
}

// Refresh exchanges a valid refresh token for a new pair, rotating the
// stored per-device refresh id so the old refresh token dies with the
// exchange.
func (s *Service) Refresh(ctx context.Context, refreshToken, device string) (TokenPair, error) {
	tok, err := s.signer.Parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	u, err := s.users.FindByID(ctx, tok.UserID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return TokenPair{}, errors.Authentication("user.not.found.by.credentials")
		}
		return TokenPair{}, errors.Internal("user.lookup", errors.WithCause(err))
	}
	if !u.Active {
		return TokenPair{}, errors.Authorization("user.inactive")
	}

	if !tok.Refresh || tok.ID == "" || u.RefreshTokenIDs[user.DeviceKey(device)] != tok.ID {
		return TokenPair{}, errors.Authorization("refresh.token.expired")
	}
	return s.issuePair(ctx, u.ID, device)
}

func (s *Service) issuePair(ctx context.Context, userID, device string) (TokenPair, error) {
	refreshTokenID, err := s.users.RotateRefreshTokenID(ctx, userID, device)
	if err != nil {
		return TokenPair{}, err
	}

	sessionExpiry := s.now().Add(s.sessionLifetime).Truncate(time.Millisecond).UTC()
	session, err := s.signer.Issue(token.Token{
		UserID:    userID,
		ExpiresAt: sessionExpiry,
	})
	if err != nil {
		return TokenPair{}, errors.Internal("token.signing", errors.WithCause(err))
	}
	refresh, err := s.signer.Issue(token.Token{
		UserID:    userID,
		ID:        refreshTokenID,
		ExpiresAt: sessionExpiry.Add(s.refreshDelta),
		Refresh:   true,
	})
	if err != nil {
		return TokenPair{}, errors.Internal("token.signing", errors.WithCause(err))
	}
	return TokenPair{Token: session, RefreshToken: refresh}, nil
}

// RequestMasterToken rotates the user's master token id and returns a
// bearer string carrying the new id. Previously issued master tokens stop
// validating.
func (s *Service) RequestMasterToken(ctx context.Context, userID string) (string, error) {
	masterTokenID, err := s.users.UpdateMasterTokenID(ctx, userID)
	if err != nil {
		return "", err
	}
	signed, err := s.signer.Issue(token.Token{UserID: userID, ID: masterTokenID})
	if err != nil {
		return "", errors.Internal("master.token.creation", errors.WithCause(err))
	}
	return signed, nil
}

// RequestApplicationToken persists a scoped token record and returns the
// bearer string minted from it.
func (s *Service) RequestApplicationToken(
	ctx context.Context,
	userID, applicationID string,
	req application.CreateTokenRequest,
) (string, *storage.ApplicationToken, error) {
	record, err := s.tokens.Create(ctx, userID, applicationID, req)
	if err != nil {
		return "", nil, err
	}

	tok := token.Token{
		UserID:        record.UserID,
		ID:            record.ID,
		ApplicationID: record.ApplicationID,
		Permissions:   record.Permissions,
		ExpiresAt:     record.ExpiresAt,
	}
	signed, err := s.signer.Issue(tok)
	if err != nil {
		return "", nil, errors.Internal("token.signing", errors.WithCause(err))
	}
	return signed, record, nil
}

// Parse verifies the bearer string and returns the embedded token.
func (s *Service) Parse(bearer string) (token.Token, error) {
	return s.signer.Parse(bearer)
}

// Validate parses the bearer string and runs the decision engine against
// the proxied request. An empty bearer string reads as a missing token.
func (s *Service) Validate(ctx context.Context, bearer, method, requestURI string) (token.Token, error) {
	if bearer == "" {
		return token.Token{}, errors.Authentication("token.missing")
	}
	tok, err := s.signer.Parse(bearer)
	if err != nil {
		return token.Token{}, err
	}
	if err := s.engine.Authorize(ctx, &tok, method, requestURI); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}
