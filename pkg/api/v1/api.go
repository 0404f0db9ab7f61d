// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the HTTP handlers for the Keyfold API.
package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/keyfold/keyfold/pkg/errors"
	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/pkg/storage"
)

// UserResponse is the caller-visible form of a user. The password hash and
// token bookkeeping never leave the service.
type UserResponse struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	Provider        string    `json:"provider"`
	ProfilePhotoURL string    `json:"profile_photo_url,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

func newUserResponse(u *storage.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		Provider:        u.Provider,
		ProfilePhotoURL: u.ProfilePhotoURL,
		Active:          u.Active,
		CreatedAt:       u.CreatedAt,
	}
}

// ApplicationResponse is the caller-visible form of an application.
type ApplicationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newApplicationResponse(app *storage.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:        app.ID,
		Name:      app.Name,
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
}

// TokenRecordResponse is the caller-visible form of an application token
// record. Permissions are rendered in their compact encoding.
type TokenRecordResponse struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	Permissions   []string   `json:"permissions"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newTokenRecordResponse(record *storage.ApplicationToken) TokenRecordResponse {
	permissions := make([]string, 0, len(record.Permissions))
	for _, p := range record.Permissions {
		permissions = append(permissions, p.Encode())
	}
	resp := TokenRecordResponse{
		ID:            record.ID,
		ApplicationID: record.ApplicationID,
		Permissions:   permissions,
		CreatedAt:     record.CreatedAt,
	}
	if !record.ExpiresAt.IsZero() {
		expiresAt := record.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Input("request.body.invalid", errors.WithCause(err))
	}
	return nil
}
