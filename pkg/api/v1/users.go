// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold/pkg/auth"
	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/user"
)

// UserRoutes defines the routes for the user API.
type UserRoutes struct {
	users *user.Service
	auth  *auth.Service
}

// UserRouter creates a new router for the user API. The caller must mount
// it behind the authentication middleware.
func UserRouter(users *user.Service, authSvc *auth.Service) http.Handler {
	routes := UserRoutes{users: users, auth: authSvc}

	r := chi.NewRouter()
	r.Get("/me", routes.me)
	r.Put("/", routes.update)
	r.Post("/master-token", routes.masterToken)
	return r
}

func principalUserID(r *http.Request) (string, error) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return "", errors.Authentication("token.missing")
	}
	return principal.UserID, nil
}

// me
//
//	@Summary		Current user
//	@Description	Return the authenticated user
//	@Tags			users
//	@Produce		json
//	@Success		200	{object}	UserResponse
//	@Router			/api/v1/users/me [get]
func (u *UserRoutes) me(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	found, err := u.users.FindByID(r.Context(), userID)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(found))
}

// UpdateUserRequest is the payload for updating the authenticated user.
type UpdateUserRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	ProfilePhotoURL string `json:"profile_photo_url"`
}

// update
//
//	@Summary		Update user
//	@Description	Update the authenticated user's profile
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			request	body	UpdateUserRequest	true	"Update request"
//	@Success		200	{object}	UserResponse
//	@Router			/api/v1/users [put]
func (u *UserRoutes) update(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	updated, err := u.users.Update(r.Context(), userID, user.UpdateRequest{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		ProfilePhotoURL: req.ProfilePhotoURL,
	})
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

// MasterTokenResponse carries a freshly issued master token.
type MasterTokenResponse struct {
	Token string `json:"token"`
}

// masterToken
//
//	@Summary		Issue master token
//	@Description	Issue a new master token, invalidating any previous one
//	@Tags			users
//	@Produce		json
//	@Success		201	{object}	MasterTokenResponse
//	@Router			/api/v1/users/master-token [post]
func (u *UserRoutes) masterToken(w http.ResponseWriter, r *http.Request) {
	userID, err := principalUserID(r)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	signed, err := u.auth.RequestMasterToken(r.Context(), userID)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MasterTokenResponse{Token: signed})
}
