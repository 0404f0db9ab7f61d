// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold/pkg/storage"
)

// HealthcheckRouter sets up the healthcheck route.
func HealthcheckRouter(store storage.Store) http.Handler {
	routes := &healthcheckRoutes{store: store}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	store storage.Store
}

//	 getHealthcheck
//		@Summary		Health check
//		@Description	Check if the API and its storage backend are healthy
//		@Tags			system
//		@Success		204	{string}	string	"No Content"
//		@Router			/health [get]
func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
