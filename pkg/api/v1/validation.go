// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold/pkg/auth"
	"github.com/keyfold/keyfold/pkg/errors"
)

// Headers carrying the proxied request details, nginx auth_request style.
const (
	HeaderOriginalMethod = "X-Original-Method"
	HeaderOriginalURI    = "X-Original-URI"
	HeaderUserID         = "X-User-Id"
	HeaderApplicationID  = "X-Application-Id"
)

// ValidationRoutes defines the validation endpoint used by reverse proxies
// to authorize requests before forwarding them.
type ValidationRoutes struct {
	auth *auth.Service
}

// ValidationRouter creates a new router for the validation API.
func ValidationRouter(authSvc *auth.Service) http.Handler {
	routes := ValidationRoutes{auth: authSvc}
	r := chi.NewRouter()
	r.Get("/", routes.validate)
	return r
}

// validate
//
//	@Summary		Validate request
//	@Description	Authorize a proxied request described by the X-Original-Method and X-Original-URI headers
//	@Tags			validation
//	@Param			X-Original-Method	header	string	true	"Proxied request method"
//	@Param			X-Original-URI		header	string	true	"Proxied request URI"
//	@Success		204	{string}	string	"No Content"
//	@Router			/api/v1/validation [get]
func (v *ValidationRoutes) validate(w http.ResponseWriter, r *http.Request) {
	method := r.Header.Get(HeaderOriginalMethod)
	uri := r.Header.Get(HeaderOriginalURI)

	tok, err := v.auth.Validate(r.Context(), auth.BearerFromRequest(r), method, uri)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	w.Header().Set(HeaderUserID, tok.UserID)
	if tok.ApplicationID != "" {
		w.Header().Set(HeaderApplicationID, tok.ApplicationID)
	}
	w.WriteHeader(http.StatusNoContent)
}
