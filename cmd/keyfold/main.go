// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the Keyfold user identity service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyfold/keyfold/cmd/keyfold/app"
	"github.com/keyfold/keyfold/pkg/logger"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
