// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold/pkg/application"
	"github.com/keyfold/keyfold/pkg/auth"
	"github.com/keyfold/keyfold/pkg/errors"
)

// ApplicationRoutes defines the routes for the application API.
type ApplicationRoutes struct {
	apps   *application.Service
	tokens *application.TokenService
	auth   *auth.Service
}

// ApplicationRouter creates a new router for the application API. The
// caller must mount it behind the authentication middleware.
func ApplicationRouter(
	apps *application.Service,
	tokens *application.TokenService,
	authSvc *auth.Service,
) http.Handler {
	routes := ApplicationRoutes{apps: apps, tokens: tokens, auth: authSvc}

	r := chi.NewRouter()
	r.Get("/", routes.list)
	r.Post("/", routes.create)
	r.Route("/{applicationID}", func(r chi.Router) {
		r.Get("/", routes.get)
		r.Put("/", routes.update)
		r.Delete("/", routes.delete)
		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", routes.listTokens)
			r.Post("/", routes.createToken)
			r.Delete("/{tokenID}", routes.deleteToken)
		})
	})
	return r
}

// ApplicationRequest is the payload for creating or renaming an
// application.
type ApplicationRequest struct {
	Name string `json:"name"`
}

// list
//
//	@Summary		List applications
//	@Description	List the authenticated user's applications
//	@Tags			applications
//	@Produce		json
//	@Success		200	{array}	ApplicationResponse
//	@Router			/api/v1/applications [get]
func (a *ApplicationRoutes) list(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	apps, err := a.apps.List(r.Context(), userID)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	out := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, newApplicationResponse(app))
	}
	writeJSON(w, http.StatusOK, out)
}

// create
//
//	@Summary		Create application
//	@Description	Register a new application for the authenticated user
//	@Tags			applications
//	@Accept			json
//	@Produce		json
//	@Param			request	body	ApplicationRequest	true	"Application request"
//	@Success		201	{object}	ApplicationResponse
//	@Router			/api/v1/applications [post]
func (a *ApplicationRoutes) create(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	var req ApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	app, err := a.apps.Create(r.Context(), userID, req.Name)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newApplicationResponse(app))
}

// get
//
//	@Summary		Get application
//	@Tags			applications
//	@Produce		json
//	@Param			applicationID	path	string	true	"Application ID"
//	@Success		200	{object}	ApplicationResponse
//	@Router			/api/v1/applications/{applicationID} [get]
func (a *ApplicationRoutes) get(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	app, err := a.apps.Get(r.Context(), userID, chi.URLParam(r, "applicationID"))
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// update
//
//	@Summary		Rename application
//	@Tags			applications
//	@Accept			json
//	@Produce		json
//	@Param			applicationID	path	string	true	"Application ID"
//	@Param			request	body	ApplicationRequest	true	"Application request"
//	@Success		200	{object}	ApplicationResponse
//	@Router			/api/v1/applications/{applicationID} [put]
func (a *ApplicationRoutes) update(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	var req ApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	app, err := a.apps.Update(r.Context(), userID, chi.URLParam(r, "applicationID"), req.Name)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// delete
//
//	@Summary		Delete application
//	@Description	Delete an application and all of its tokens
//	@Tags			applications
//	@Produce		json
//	@Param			applicationID	path	string	true	"Application ID"
//	@Success		200	{object}	ApplicationResponse
//	@Router			/api/v1/applications/{applicationID} [delete]
func (a *ApplicationRoutes) delete(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	app, err := a.apps.Delete(r.Context(), userID, chi.URLParam(r, "applicationID"))
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationResponse(app))
}

// CreateTokenRequest is the payload for minting an application token.
type CreateTokenRequest struct {
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// CreateTokenResponse carries the signed token alongside its record.
type CreateTokenResponse struct {
	Token string `json:"token"`
	TokenRecordResponse
}

// listTokens
//
//	@Summary		List application tokens
//	@Tags			applications
//	@Produce		json
//	@Param			applicationID	path	string	true	"Application ID"
//	@Success		200	{array}	TokenRecordResponse
//	@Router			/api/v1/applications/{applicationID}/tokens [get]
func (a *ApplicationRoutes) listTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	records, err := a.tokens.List(r.Context(), userID, chi.URLParam(r, "applicationID"))
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	out := make([]TokenRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, newTokenRecordResponse(record))
	}
	writeJSON(w, http.StatusOK, out)
}

// createToken
//
//	@Summary		Create application token
//	@Description	Mint a scoped token for an application
//	@Tags			applications
//	@Accept			json
//	@Produce		json
//	@Param			applicationID	path	string	true	"Application ID"
//	@Param			request	body	CreateTokenRequest	true	"Token request"
//	@Success		201	{object}	CreateTokenResponse
//	@Router			/api/v1/applications/{applicationID}/tokens [post]
func (a *ApplicationRoutes) createToken(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	var req CreateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	createReq := application.CreateTokenRequest{Permissions: req.Permissions}
	if req.ExpiresAt != nil {
		createReq.ExpiresAt = *req.ExpiresAt
	}

	signed, record, err := a.auth.RequestApplicationToken(r.Context(), userID, chi.URLParam(r, "applicationID"), createReq)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateTokenResponse{
		Token:               signed,
		TokenRecordResponse: newTokenRecordResponse(record),
	})
}

// deleteToken
//
//	@Summary		Delete application token
//	@Description	Delete a token record, revoking its signed bearer string
//	@Tags			applications
//	@Param			applicationID	path	string	true	"Application ID"
//	@Param			tokenID	path	string	true	"Token ID"
//	@Success		204	{string}	string	"No Content"
//	@Router			/api/v1/applications/{applicationID}/tokens/{tokenID} [delete]
func (a *ApplicationRoutes) deleteToken(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	err = a.tokens.Delete(r.Context(), userID, chi.URLParam(r, "applicationID"), chi.URLParam(r, "tokenID"))
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
