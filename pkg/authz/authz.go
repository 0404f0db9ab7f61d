// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package authz implements the authorization decision engine: given a
// parsed token and the method and URI of a proxied request, it produces
// exactly one allow or deny outcome. The engine is stateless and silent;
// it never logs and never retries.
package authz

//go:generate mockgen -destination=mocks/mock_stores.go -package=mocks -source=authz.go UserStore,TokenStore

import (
	"context"
	goerrors "errors"
	"net/url"
	"strings"
	"time"

	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/token"
)

// UserStore is the user lookup the engine needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*storage.User, error)
}

// TokenStore is the token-record lookup the engine needs. Record existence
// doubles as the revocation check for application tokens.
type TokenStore interface {
	GetApplicationToken(ctx context.Context, id string) (*storage.ApplicationToken, error)
}

// Authorizer decides whether a token authorizes a request.
type Authorizer struct {
	users  UserStore
	tokens TokenStore
	now    func() time.Time
}

// Option customizes an Authorizer.
type Option func(*Authorizer)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		a.now = now
	}
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(users UserStore, tokens TokenStore, opts ...Option) *Authorizer {
	a := &Authorizer{
		users:  users,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize checks whether tok authorizes a request with the given method
// and URI. A nil error is the only allow outcome.
//
// The expiration boundary is exclusive: a token expiring exactly "now" is
// already expired.
func (a *Authorizer) Authorize(ctx context.Context, tok *token.Token, method, requestURI string) error {
	if tok == nil {
		return errors.Authentication("token.missing")
	}
	if !tok.ExpiresAt.IsZero() && !tok.ExpiresAt.After(a.now()) {
		return errors.Authorization("token.expired")
	}

	user, err := a.users.GetUser(ctx, tok.UserID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.Authorization("user.not.found")
		}
		return errors.Internal("user.lookup", errors.WithCause(err))
	}
	if !user.Active {
		return errors.Authorization("user.inactive")
	}

	// Refresh tokens only ever mint new session tokens; they carry no
	// resource access at all.
	if tok.Refresh {
		return errors.Authorization("token.refresh.only")
	}

	if tok.ApplicationID == "" {
		if tok.ID != "" {
			// Master token: only the latest issued id is valid.
			if tok.ID != user.MasterTokenID {
				return errors.Authentication("token.master.invalid")
			}
			return nil
		}
		// UI session token: valid until its embedded expiration.
		return nil
	}
	return a.authorizeScoped(ctx, tok, method, requestURI)
}

func (a *Authorizer) authorizeScoped(ctx context.Context, tok *token.Token, method, requestURI string) error {
	parsed, err := url.Parse(requestURI)
	if err != nil {
		return errors.Input("request.uri.invalid", errors.WithCause(err))
	}
	requestPath := parsed.Path

	// First permission whose resource path occurs in the request path wins.
	var matched *token.Permission
	for i := range tok.Permissions {
		if strings.Contains(requestPath, tok.Permissions[i].Resource.Path()) {
			matched = &tok.Permissions[i]
			break
		}
	}
	if matched == nil {
		return errors.Authorization("resource.not.available")
	}

	if !methodAllowed(method, matched.Access) {
		return errors.Authorization("operation.not.allowed")
	}

	// The persisted record is the revocation anchor: no record, no access.
	if tok.ID == "" {
		return errors.Authorization("token.invalid")
	}
	record, err := a.tokens.GetApplicationToken(ctx, tok.ID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.Authorization("token.does.not.exist")
		}
		return errors.Internal("token.lookup", errors.WithCause(err))
	}
	if record.UserID != tok.UserID || record.ApplicationID != tok.ApplicationID {
		return errors.Authorization("token.does.not.exist")
	}
	return nil
}

func methodAllowed(method string, accesses []token.Access) bool {
	method = strings.ToUpper(method)
	for _, access := range accesses {
		for _, allowed := range access.Methods() {
			if method == allowed {
				return true
			}
		}
	}
	return false
}
