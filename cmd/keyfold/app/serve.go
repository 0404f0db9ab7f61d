// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keyfold/keyfold/pkg/api"
	v1 "github.com/keyfold/keyfold/pkg/api/v1"
	"github.com/keyfold/keyfold/pkg/application"
	"github.com/keyfold/keyfold/pkg/auth"
	"github.com/keyfold/keyfold/pkg/authz"
	"github.com/keyfold/keyfold/pkg/config"
	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/pkg/notify"
	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/token"
	"github.com/keyfold/keyfold/pkg/user"
)

// newServeCmd creates the serve command for starting the API server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keyfold API server",
		Long: `Start the Keyfold API server.

The server reads its configuration from the file given by --config and from
KEYFOLD_* environment variables, and serves the user, application, token
and validation endpoints until interrupted.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", "", "Address to listen on (overrides the configured one)")
	if err := viper.BindPFlag("serve.address", cmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("failed to bind address flag: %v", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr := viper.GetString("serve.address"); addr != "" {
		cfg.Address = addr
	}

	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close storage backend: %v", err)
		}
	}()
	logger.Infof("using %s storage backend", cfg.Storage.Type)

	signer, err := token.NewSigner([]byte(cfg.Token.Secret))
	if err != nil {
		return fmt.Errorf("failed to create token signer: %w", err)
	}

	users := user.NewService(store, user.NewBcryptHasher(0), notify.NewLogNotifier())
	apps := application.NewService(store)
	tokens := application.NewTokenService(store, apps)
	engine := authz.NewAuthorizer(store, store)
	authSvc := auth.NewService(users, tokens, signer, engine,
		auth.WithSessionLifetime(cfg.Token.SessionLifetime),
		auth.WithRefreshDelta(cfg.Token.RefreshDelta),
	)

	return api.Serve(ctx, cfg.Address, api.Dependencies{
		Users:        users,
		Applications: apps,
		Tokens:       tokens,
		Auth:         authSvc,
		Store:        store,
		SignInLimit: v1.RateLimit{
			PerMinute: cfg.SignIn.RatePerMinute,
			Burst:     cfg.SignIn.Burst,
		},
	})
}
