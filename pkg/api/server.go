// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API for Keyfold.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/keyfold/keyfold/pkg/api/v1"
	"github.com/keyfold/keyfold/pkg/application"
	"github.com/keyfold/keyfold/pkg/auth"
	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/user"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Dependencies carries the services the API routes are built from.
type Dependencies struct {
	Users        *user.Service
	Applications *application.Service
	Tokens       *application.TokenService
	Auth         *auth.Service
	Store        storage.Store

	// SignInLimit throttles credential endpoints per client IP.
	SignInLimit v1.RateLimit
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Router assembles the full route tree.
func Router(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	authenticated := auth.Middleware(deps.Auth)

	routers := map[string]http.Handler{
		"/health":              v1.HealthcheckRouter(deps.Store),
		"/api/v1/auth":         v1.AuthRouter(deps.Users, deps.Auth, deps.SignInLimit),
		"/api/v1/users":        authenticated(v1.UserRouter(deps.Users, deps.Auth)),
		"/api/v1/applications": authenticated(v1.ApplicationRouter(deps.Applications, deps.Tokens, deps.Auth)),
		"/api/v1/validation":   v1.ValidationRouter(deps.Auth),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}

// Serve starts the server on the given address and serves the API until the
// context is canceled. It is assumed that the caller sets up appropriate
// signal handling.
func Serve(ctx context.Context, address string, deps Dependencies) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	logger.Infof("starting HTTP server on %s", address)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("HTTP server stopped")
	return nil
}
