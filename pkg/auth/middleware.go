// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	goerrors "errors"
	"net/http"
	"strings"

	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/token"
)

// Authenticate verifies a bearer string presented to a first-party
// endpoint and returns the principal. Only session and master tokens
// authenticate here: refresh tokens and application-scoped tokens are
// rejected, the user must exist and be active, and a master token must
// carry the user's current master token id.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*token.Token, error) {
	if bearer == "" {
		return nil, errors.Authentication("token.missing")
	}
	tok, err := s.signer.Parse(bearer)
	if err != nil {
		return nil, err
	}
	if tok.Refresh {
		return nil, errors.Authorization("token.refresh.only")
	}
	if tok.ApplicationID != "" {
		return nil, errors.Authorization("resource.not.available")
	}

	u, err := s.users.FindByID(ctx, tok.UserID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Authorization("user.not.found")
		}
		return nil, errors.Internal("user.lookup", errors.WithCause(err))
	}
	if !u.Active {
		return nil, errors.Authorization("user.inactive")
	}
	if tok.ID != "" && tok.ID != u.MasterTokenID {
		return nil, errors.Authentication("token.master.invalid")
	}
	return &tok, nil
}

// BearerFromRequest extracts the bearer string from the Authorization
// header. Returns "" when the header is absent or not a Bearer scheme.
func BearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Middleware authenticates every request through the service and stores
// the principal in the request context. Requests that do not authenticate
// are answered directly with the failure body.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := svc.Authenticate(r.Context(), BearerFromRequest(r))
			if err != nil {
				errors.WriteHTTP(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), tok)))
		})
	}
}
