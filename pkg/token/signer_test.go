// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/pkg/errors"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestSigner(t *testing.T, opts ...SignerOption) *Signer {
	t.Helper()
	s, err := NewSigner(testSecret, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSigner([]byte("too-short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	tok := Token{
		UserID:        "u1",
		ID:            "t1",
		ApplicationID: "a1",
		Permissions: []Permission{
			{Resource: ResourceBook, Access: []Access{AccessCreate, AccessDelete}, Own: true},
		},
		ExpiresAt: time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()).UTC(),
	}

	signed, err := signer.Issue(tok)
	require.NoError(t, err)
	assert.Len(t, strings.Split(signed, "."), 3)

	parsed, err := signer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
}

func TestIssueAppliesDefaultLifetime(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now()
	signer := newTestSigner(t,
		WithDefaultLifetime(time.Minute),
		WithNow(func() time.Time { return issuedAt }),
	)

	signed, err := signer.Issue(Token{UserID: "u1", ID: "m1"})
	require.NoError(t, err)

	// Still valid just before the default lifetime elapses.
	early, err := NewSigner(testSecret, WithNow(func() time.Time { return issuedAt.Add(30 * time.Second) }))
	require.NoError(t, err)
	_, err = early.Parse(signed)
	require.NoError(t, err)

	// Rejected after the envelope expires.
	late, err := NewSigner(testSecret, WithNow(func() time.Time { return issuedAt.Add(2 * time.Minute) }))
	require.NoError(t, err)
	_, err = late.Parse(signed)
	require.ErrorIs(t, err, ErrExpired)
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	signed, err := signer.Issue(Token{UserID: "u1"})
	require.NoError(t, err)

	// Swap one character of the signature segment, staying inside the
	// base64url alphabet so the failure is a signature mismatch rather
	// than a decode error.
	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	// The final character's low bits are padding in unpadded base64url and
	// may not survive decoding, so only positions before it are mutated.
	for i := 0; i < len(sig)-1; i++ {
		mutated := make([]byte, len(sig))
		copy(mutated, sig)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		if string(mutated) == parts[2] {
			continue
		}
		tampered := parts[0] + "." + parts[1] + "." + string(mutated)

		_, err := signer.Parse(tampered)
		require.Error(t, err, "tampered signature at byte %d must not verify", i)
		require.ErrorIs(t, err, ErrSignatureInvalid)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	signed, err := signer.Issue(Token{UserID: "u1"})
	require.NoError(t, err)

	other, err := NewSigner([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, err = other.Parse(signed)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not a jwt", "definitely-not-a-token"},
		{"two segments", "abc.def"},
		{"bad payload", "eyJ.eyJ.sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := signer.Parse(tt.input)
			require.ErrorIs(t, err, ErrMalformed)

			var fail *errors.Fail
			require.ErrorAs(t, err, &fail)
			assert.Equal(t, "fail.authentication.token.invalid", fail.Type)
		})
	}
}

func TestParseRejectsUndecodablePayload(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)

	// A correctly signed envelope around a compact record without a user id
	// is still an invalid token.
	signed, err := signer.Issue(Token{UserID: "u1"})
	require.NoError(t, err)
	_, err = signer.Parse(signed)
	require.NoError(t, err)

	blank, err := signer.Issue(Token{UserID: "   "})
	require.NoError(t, err)
	_, err = signer.Parse(blank)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseFailureIsUniformToCallers(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, WithNow(func() time.Time { return time.Now().Add(48 * time.Hour) }))
	expired, err := newTestSigner(t).Issue(Token{
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = signer.Parse(expired)
	require.ErrorIs(t, err, ErrExpired)

	var fail *errors.Fail
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, "fail.authentication.token.invalid", fail.Type)
}
