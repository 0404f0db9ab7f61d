// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
)

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses Redis-backed storage.
	TypeRedis Type = "redis"
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type

	// Redis holds connection details when Type is redis.
	Redis RedisConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
	}
}

// New creates the Store described by the config.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
