// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package token implements keyfold's bearer-token model: the permission
// codec, the compact token record embedded in signed payloads, and the
// HMAC signer/verifier that turns records into opaque bearer strings.
//
// The package is stateless and never touches storage or logging; deciding
// whether a parsed token is actually authorized belongs to pkg/authz.
package token

import (
	"strings"
	"time"

	"github.com/keyfold/keyfold/pkg/errors"
)

// failInvalidToken is the shared failure key for every malformed, forged or
// otherwise undecodable token. Callers see one uniform invalid-token result;
// the sub-kind survives as the wrapped cause for observability.
const failInvalidToken = "token.invalid"

// PrincipalKind tags the three shapes a decoded token can take.
type PrincipalKind int

// Principal kinds.
const (
	// PrincipalSession is a short-lived UI token issued at sign-in. It has
	// no instance id and no application id, and is valid until expiry.
	PrincipalSession PrincipalKind = iota

	// PrincipalMaster is a long-lived user token. Its instance id must match
	// the single currently-active master token id stored on the user.
	PrincipalMaster

	// PrincipalScoped is an application token restricted to a permission set.
	PrincipalScoped
)

// String returns the principal kind name for logs and failure properties.
func (k PrincipalKind) String() string {
	switch k {
	case PrincipalMaster:
		return "master"
	case PrincipalScoped:
		return "scoped"
	default:
		return "session"
	}
}

// Token is the decoded authorization claim carried by a bearer string.
// It is value-like: constructed fresh on every parse, owning no mutable
// state, and never shared beyond a single request.
type Token struct {
	// UserID identifies the user the token acts for. Always present.
	UserID string

	// ID is the token-instance id. Present for master tokens (matched
	// against the user record), refresh tokens (matched against the stored
	// per-device refresh id) and application tokens (matched against the
	// persisted grant record). Empty for UI session tokens.
	ID string

	// ApplicationID scopes the token to one application. Empty for master
	// and UI session tokens.
	ApplicationID string

	// Permissions are the scoped grants, in issue order.
	Permissions []Permission

	// ExpiresAt is the application-level expiration instant, with
	// millisecond precision. The zero value means no expiration.
	ExpiresAt time.Time

	// Refresh marks a token usable only to mint a new session pair,
	// never to access resources.
	Refresh bool
}

// Principal returns the tagged shape of the token.
func (t Token) Principal() PrincipalKind {
	switch {
	case t.ApplicationID != "":
		return PrincipalScoped
	case t.ID != "":
		return PrincipalMaster
	default:
		return PrincipalSession
	}
}

// Compact is the short-keyed serializable shape of a Token used inside the
// signed payload. Field keys are deliberately terse to keep bearer strings
// small.
type Compact struct {
	UserID        string   `json:"u"`
	ID            string   `json:"i,omitempty"`
	ApplicationID string   `json:"a,omitempty"`
	Permissions   []string `json:"p,omitempty"`
	ExpiresAt     int64    `json:"e,omitempty"`
	Refresh       bool     `json:"r,omitempty"`
}

// Compact serializes the token into its compact record. It is total: a
// well-formed Token always compacts.
func (t Token) Compact() Compact {
	c := Compact{
		UserID:        t.UserID,
		ID:            t.ID,
		ApplicationID: t.ApplicationID,
		Refresh:       t.Refresh,
	}
	for _, p := range t.Permissions {
		c.Permissions = append(c.Permissions, p.Encode())
	}
	if !t.ExpiresAt.IsZero() {
		c.ExpiresAt = t.ExpiresAt.UnixMilli()
	}
	return c
}

// Loosen decodes the compact record back into a Token. It fails fast with
// an invalid-token failure on a blank user id or on the first permission
// entry that does not decode; there is no partial result.
func (c Compact) Loosen() (Token, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return Token{}, errors.Authentication(failInvalidToken)
	}
	t := Token{
		UserID:        c.UserID,
		ID:            c.ID,
		ApplicationID: c.ApplicationID,
		Refresh:       c.Refresh,
	}
	for _, entry := range c.Permissions {
		p, err := DecodePermission(entry)
		if err != nil {
			return Token{}, err
		}
		t.Permissions = append(t.Permissions, p)
	}
	if c.ExpiresAt != 0 {
		t.ExpiresAt = time.UnixMilli(c.ExpiresAt).UTC()
	}
	return t, nil
}
