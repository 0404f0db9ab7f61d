// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify publishes user lifecycle events to interested consumers.
package notify

import (
	"context"

	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/pkg/storage"
)

// Notifier receives user lifecycle events. Implementations must be
// best-effort: callers ignore notification failures and never roll back the
// triggering operation.
type Notifier interface {
	// UserRegistered fires after a user record has been persisted.
	UserRegistered(ctx context.Context, user *storage.User)

	// UserActivated fires after an inactive user has been switched on.
	UserActivated(ctx context.Context, user *storage.User)
}

// LogNotifier is the default Notifier. It writes structured log lines.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// UserRegistered logs the registration event.
func (*LogNotifier) UserRegistered(_ context.Context, user *storage.User) {
	logger.Infow("user registered", "user_id", user.ID, "provider", user.Provider)
}

// UserActivated logs the activation event.
func (*LogNotifier) UserActivated(_ context.Context, user *storage.User) {
	logger.Infow("user activated", "user_id", user.ID)
}

// NopNotifier discards all events. Useful in tests.
type NopNotifier struct{}

// UserRegistered implements Notifier.
func (NopNotifier) UserRegistered(context.Context, *storage.User) {}

// UserActivated implements Notifier.
func (NopNotifier) UserActivated(context.Context, *storage.User) {}
