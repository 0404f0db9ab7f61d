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

// AuthRoutes defines the routes for the authentication API.
type AuthRoutes struct {
	users *user.Service
	auth  *auth.Service
}

// AuthRouter creates a new router for the authentication API. Credential
// endpoints are throttled per client IP.
func AuthRouter(users *user.Service, authSvc *auth.Service, limit RateLimit) http.Handler {
	routes := AuthRoutes{users: users, auth: authSvc}
	limiter := newClientLimiter(limit)

	r := chi.NewRouter()
	r.With(limiter.Middleware).Post("/sign-up", routes.signUp)
	r.With(limiter.Middleware).Post("/sign-in", routes.signIn)
	r.Post("/refresh-token", routes.refreshToken)
	return r
}

// SignUpRequest is the payload for registering a new user.
type SignUpRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// signUp
//
//	@Summary		Register a new user
//	@Description	Register a new local user with email and password
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	SignUpRequest	true	"Sign-up request"
//	@Success		201	{object}	UserResponse
//	@Router			/api/v1/auth/sign-up [post]
func (a *AuthRoutes) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	u, err := a.users.Create(r.Context(), user.CreateRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Provider:  user.ProviderLocal,
	})
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

// SignInRequest is the payload for exchanging credentials for tokens.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signIn
//
//	@Summary		Sign in
//	@Description	Exchange credentials for a session and refresh token pair
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	SignInRequest	true	"Sign-in request"
//	@Success		200	{object}	auth.TokenPair
//	@Router			/api/v1/auth/sign-in [post]
func (a *AuthRoutes) signIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	pair, err := a.auth.SignIn(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// RefreshTokenRequest is the payload for exchanging a refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshToken
//
//	@Summary		Refresh tokens
//	@Description	Exchange a refresh token for a new session and refresh token pair
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	RefreshTokenRequest	true	"Refresh request"
//	@Success		200	{object}	auth.TokenPair
//	@Router			/api/v1/auth/refresh-token [post]
func (a *AuthRoutes) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	if req.RefreshToken == "" {
		errors.WriteHTTP(w, errors.Authentication("token.missing"))
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken, r.UserAgent())
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
