// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the failure values exchanged across keyfold's
// service boundaries. Every failure carries a stable machine-readable type
// string (for example "fail.authorization.token.expired") that clients map
// to an HTTP status, plus an optional human description and structured
// properties for localization and debugging.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Failure kinds. A concrete failure type string is "<kind>" or "<kind>.<key>".
const (
	// KindInput is returned when a request payload fails validation.
	KindInput = "fail.input"

	// KindAuthentication is returned when the caller cannot be identified.
	KindAuthentication = "fail.authentication"

	// KindAuthorization is returned when an identified caller is not allowed.
	KindAuthorization = "fail.authorization"

	// KindResource is returned when an owner-scoped lookup finds nothing.
	KindResource = "fail.resource"

	// KindConflict is returned when a uniqueness constraint is violated.
	KindConflict = "fail.conflict"

	// KindInternal is returned for unexpected failures.
	KindInternal = "fail.internal"
)

// Fail represents a failure in the application.
type Fail struct {
	// Type is the stable machine-readable failure type string.
	Type string

	// Description is an optional human-readable description.
	Description string

	// Properties carries structured context for client-side localization,
	// such as the violated max-length constant.
	Properties map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message.
func (f *Fail) Error() string {
	switch {
	case f.Cause != nil && f.Description != "":
		return fmt.Sprintf("%s: %s: %s", f.Type, f.Description, f.Cause)
	case f.Cause != nil:
		return fmt.Sprintf("%s: %s", f.Type, f.Cause)
	case f.Description != "":
		return fmt.Sprintf("%s: %s", f.Type, f.Description)
	default:
		return f.Type
	}
}

// Unwrap returns the underlying error.
func (f *Fail) Unwrap() error {
	return f.Cause
}

// Is reports whether target matches this failure by type string.
func (f *Fail) Is(target error) bool {
	t, ok := target.(*Fail)
	return ok && f.Type == t.Type
}

// HTTPStatus maps the failure kind to the caller-visible HTTP status.
func (f *Fail) HTTPStatus() int {
	switch {
	case strings.HasPrefix(f.Type, KindResource):
		return http.StatusNotFound
	case strings.HasPrefix(f.Type, KindAuthentication):
		return http.StatusUnauthorized
	case strings.HasPrefix(f.Type, KindAuthorization):
		return http.StatusForbidden
	case strings.HasPrefix(f.Type, KindConflict):
		return http.StatusConflict
	case strings.HasPrefix(f.Type, KindInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// FailOption configures optional failure fields.
type FailOption func(*Fail)

// WithDescription sets the human-readable description.
func WithDescription(description string) FailOption {
	return func(f *Fail) {
		f.Description = description
	}
}

// WithProperties sets the structured properties.
func WithProperties(properties map[string]string) FailOption {
	return func(f *Fail) {
		f.Properties = properties
	}
}

// WithCause sets the underlying error.
func WithCause(cause error) FailOption {
	return func(f *Fail) {
		f.Cause = cause
	}
}

func newFail(kind, key string, opts ...FailOption) *Fail {
	t := kind
	if strings.TrimSpace(key) != "" {
		t = kind + "." + key
	}
	f := &Fail{Type: t}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Input creates an input-validation failure.
func Input(key string, opts ...FailOption) *Fail {
	return newFail(KindInput, key, opts...)
}

// Authentication creates an authentication failure.
func Authentication(key string, opts ...FailOption) *Fail {
	return newFail(KindAuthentication, key, opts...)
}

// Authorization creates an authorization failure.
func Authorization(key string, opts ...FailOption) *Fail {
	return newFail(KindAuthorization, key, opts...)
}

// Resource creates a resource-not-found failure.
func Resource(key string, opts ...FailOption) *Fail {
	return newFail(KindResource, key, opts...)
}

// Conflict creates a conflict failure.
func Conflict(key string, opts ...FailOption) *Fail {
	return newFail(KindConflict, key, opts...)
}

// Internal creates an internal failure.
func Internal(key string, opts ...FailOption) *Fail {
	return newFail(KindInternal, key, opts...)
}

// IsKind checks whether err is a *Fail of the given kind.
func IsKind(err error, kind string) bool {
	f, ok := err.(*Fail)
	return ok && strings.HasPrefix(f.Type, kind)
}
