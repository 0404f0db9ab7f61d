// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"net/http"
	"strings"

	"github.com/keyfold/keyfold/pkg/errors"
)

// Resource identifies a protected resource family. Each resource maps to a
// single-character wire code and the canonical URL path prefix the gateway
// routes it under.
type Resource string

// Known resources.
const (
	ResourceBook    Resource = "book"
	ResourceTodo    Resource = "todo"
	ResourceRoutine Resource = "routine"
)

type resourceInfo struct {
	code string
	path string
}

var resources = map[Resource]resourceInfo{
	ResourceBook:    {code: "b", path: "/books"},
	ResourceTodo:    {code: "t", path: "/todos"},
	ResourceRoutine: {code: "r", path: "/routines"},
}

// Code returns the single-character wire code for the resource.
func (r Resource) Code() string {
	return resources[r].code
}

// Path returns the canonical URL path prefix for the resource.
func (r Resource) Path() string {
	return resources[r].path
}

// Valid reports whether the resource is a known enum value.
func (r Resource) Valid() bool {
	_, ok := resources[r]
	return ok
}

// ResourceByCode resolves a wire code (case-insensitive) to a resource.
func ResourceByCode(code string) (Resource, bool) {
	lower := strings.ToLower(code)
	for r, info := range resources {
		if info.code == lower {
			return r, true
		}
	}
	return "", false
}

// Access identifies a kind of operation a permission grants.
type Access string

// Known access kinds.
const (
	AccessCreate Access = "create"
	AccessRead   Access = "read"
	AccessUpdate Access = "update"
	AccessDelete Access = "delete"
)

type accessInfo struct {
	code    string
	methods []string
}

var accesses = map[Access]accessInfo{
	AccessCreate: {code: "c", methods: []string{http.MethodPost}},
	AccessRead:   {code: "r", methods: []string{http.MethodGet}},
	AccessUpdate: {code: "u", methods: []string{http.MethodPatch, http.MethodPut}},
	AccessDelete: {code: "d", methods: []string{http.MethodDelete}},
}

// Code returns the single-character wire code for the access kind.
func (a Access) Code() string {
	return accesses[a].code
}

// Methods returns the HTTP methods the access kind allows.
func (a Access) Methods() []string {
	return accesses[a].methods
}

// Valid reports whether the access kind is a known enum value.
func (a Access) Valid() bool {
	_, ok := accesses[a]
	return ok
}

// AccessByCode resolves a wire code (case-insensitive) to an access kind.
func AccessByCode(code string) (Access, bool) {
	lower := strings.ToLower(code)
	for a, info := range accesses {
		if info.code == lower {
			return a, true
		}
	}
	return "", false
}

// Permission is a grant over one resource carried inside a scoped token.
// Own restricts the grant to resources owned by the token's user; its
// enforcement belongs to the resource services, the token merely carries it.
type Permission struct {
	Resource Resource
	Access   []Access
	Own      bool
}

// Encode renders the permission as its compact wire form
// "<resource-code>:<access-codes>[:n]", where the ":n" suffix marks Own=false.
func (p Permission) Encode() string {
	var sb strings.Builder
	sb.WriteString(p.Resource.Code())
	sb.WriteString(":")
	for _, a := range p.Access {
		sb.WriteString(a.Code())
	}
	if !p.Own {
		sb.WriteString(":n")
	}
	return sb.String()
}

// DecodePermission parses the compact wire form back into a Permission.
// A malformed entry implies a corrupted or forged token, so every failure
// maps to the same invalid-token class. An empty access segment decodes to
// an empty access list; whether that is meaningful is the decision engine's
// concern. Access order and repeats are preserved.
func DecodePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Permission{}, errors.Authentication(failInvalidToken)
	}
	resource, ok := ResourceByCode(parts[0])
	if !ok {
		return Permission{}, errors.Authentication(failInvalidToken)
	}
	var access []Access
	for _, c := range parts[1] {
		a, ok := AccessByCode(string(c))
		if !ok {
			return Permission{}, errors.Authentication(failInvalidToken)
		}
		access = append(access, a)
	}
	// Any third segment other than the literal "n" leaves Own true.
	own := len(parts) != 3 || parts[2] != "n"
	return Permission{Resource: resource, Access: access, Own: own}, nil
}
