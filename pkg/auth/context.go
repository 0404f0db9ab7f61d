// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/keyfold/keyfold/pkg/token"
)

// PrincipalContextKey is the key used to store the authenticated token in
// the request context.
//
// Using an empty struct as the key prevents collisions with other context
// keys, as each empty struct type is distinct even if they have the same
// name in different packages.
type PrincipalContextKey struct{}

// WithPrincipal stores the authenticated token in the context. A nil token
// returns the original context unchanged.
func WithPrincipal(ctx context.Context, tok *token.Token) context.Context {
	if tok == nil {
		return ctx
	}
	return context.WithValue(ctx, PrincipalContextKey{}, tok)
}

// PrincipalFromContext retrieves the authenticated token from the context.
// Returns the token and true if present, nil and false otherwise.
func PrincipalFromContext(ctx context.Context) (*token.Token, bool) {
	tok, ok := ctx.Value(PrincipalContextKey{}).(*token.Token)
	return tok, ok
}
