// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	goerrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyfold/keyfold/pkg/errors"
)

// MinSecretLength is the minimum required length for the signing secret in
// bytes. 32 bytes (256 bits) is required per OWASP/NIST guidelines for HMAC
// keys.
const MinSecretLength = 32

// DefaultLifetime is the envelope lifetime applied when the token carries no
// expiration of its own (master and application tokens).
const DefaultLifetime = 365 * 24 * time.Hour

// Parse failure sub-kinds. Callers receive one uniform invalid-token
// failure; these sentinels survive in its cause chain so middleware can log
// the distinct reason.
var (
	// ErrSignatureInvalid indicates a tampered payload or a wrong key.
	ErrSignatureInvalid = goerrors.New("token signature invalid")

	// ErrMalformed indicates the string is not a well-formed signed token
	// or its payload does not decode.
	ErrMalformed = goerrors.New("token malformed")

	// ErrExpired indicates the signed envelope's expiration has elapsed.
	// The application-level expiration inside the Token is a separate check
	// owned by the decision engine.
	ErrExpired = goerrors.New("token expired")
)

// Signer issues and verifies signed bearer strings. The same HMAC-SHA256
// construction backs all token kinds; only the expiration value
// distinguishes a short-lived session token from a long-lived master or
// application token.
//
// There is a single shared symmetric key across all token kinds: no
// per-audience key separation and no rotation. The key is owned by the
// composition root and injected here, never read from ambient state.
type Signer struct {
	key             []byte
	defaultLifetime time.Duration
	now             func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithDefaultLifetime overrides the fallback envelope lifetime.
func WithDefaultLifetime(d time.Duration) SignerOption {
	return func(s *Signer) {
		s.defaultLifetime = d
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a Signer from the shared secret.
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	s := &Signer{
		key:             secret,
		defaultLifetime: DefaultLifetime,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// signedClaims is the claims payload: the compact record fields inline next
// to the registered iat/exp envelope claims.
type signedClaims struct {
	Compact
	jwt.RegisteredClaims
}

// Issue serializes the token's compact record into a signed bearer string.
// The envelope expiration is the token's own expiration when set, otherwise
// now plus the default lifetime.
func (s *Signer) Issue(t Token) (string, error) {
	now := s.now()
	expiresAt := t.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.defaultLifetime)
	}
	claims := signedClaims{
		Compact: t.Compact(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the bearer string's signature and envelope and decodes the
// embedded compact record. All failures collapse to one caller-visible
// invalid-token authentication failure; the wrapped cause distinguishes
// signature, malformed and expired sub-kinds for logging.
func (s *Signer) Parse(tokenString string) (Token, error) {
	var claims signedClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Token{}, invalidToken(subKind(err))
	}
	t, err := claims.Compact.Loosen()
	if err != nil {
		return Token{}, invalidToken(fmt.Errorf("%w: %w", ErrMalformed, err))
	}
	return t, nil
}

func subKind(err error) error {
	switch {
	case goerrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case goerrors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

func invalidToken(cause error) error {
	return errors.Authentication(failInvalidToken, errors.WithCause(cause))
}
