// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the service config structure
// and the logic required to load it from flags, environment variables and
// an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/keyfold/keyfold/pkg/storage"
	"github.com/keyfold/keyfold/pkg/token"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// KEYFOLD_TOKEN_SECRET maps to token.secret.
const EnvPrefix = "KEYFOLD"

// Config represents the configuration of the service.
type Config struct {
	Address string       `mapstructure:"address"`
	Debug   bool         `mapstructure:"debug"`
	Token   TokenConfig  `mapstructure:"token"`
	Storage StoreConfig  `mapstructure:"storage"`
	SignIn  SignInConfig `mapstructure:"signin"`
}

// TokenConfig holds the signing key and token lifetimes.
type TokenConfig struct {
	// Secret is the HMAC signing key. Required, at least 32 bytes.
	Secret string `mapstructure:"secret"`

	// SessionLifetime is how long a session token lives.
	SessionLifetime time.Duration `mapstructure:"session_lifetime"`

	// RefreshDelta is how much longer than its session token a refresh
	// token lives.
	RefreshDelta time.Duration `mapstructure:"refresh_delta"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the Redis connection details.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SignInConfig holds the per-client-IP rate limit applied to credential
// endpoints.
type SignInConfig struct {
	// RatePerMinute is the sustained number of sign-in attempts allowed
	// per client IP per minute.
	RatePerMinute int `mapstructure:"rate_per_minute"`

	// Burst is the number of attempts allowed above the sustained rate.
	Burst int `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", ":8080")
	v.SetDefault("debug", false)
	// Registered empty so environment-only values survive Unmarshal.
	v.SetDefault("token.secret", "")
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("token.session_lifetime", 10*time.Minute)
	v.SetDefault("token.refresh_delta", 30*24*time.Hour)
	v.SetDefault("storage.type", string(storage.TypeMemory))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", "keyfold:")
	v.SetDefault("signin.rate_per_minute", 10)
	v.SetDefault("signin.burst", 5)
}

// Load reads the configuration from the given file path (optional, "" skips
// it) and the KEYFOLD_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration for values the service cannot
// start without.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < token.MinSecretLength {
		return fmt.Errorf("token.secret must be at least %d bytes", token.MinSecretLength)
	}
	if c.Token.SessionLifetime <= 0 {
		return fmt.Errorf("token.session_lifetime must be positive")
	}
	if c.Token.RefreshDelta <= 0 {
		return fmt.Errorf("token.refresh_delta must be positive")
	}
	switch storage.Type(c.Storage.Type) {
	case storage.TypeMemory, storage.TypeRedis:
	default:
		return fmt.Errorf("unknown storage.type: %q", c.Storage.Type)
	}
	if storage.Type(c.Storage.Type) == storage.TypeRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}
	if c.SignIn.RatePerMinute <= 0 || c.SignIn.Burst <= 0 {
		return fmt.Errorf("signin.rate_per_minute and signin.burst must be positive")
	}
	return nil
}

// StorageConfig translates the loaded values into the storage package's
// config structure.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Type: storage.Type(c.Storage.Type),
		Redis: storage.RedisConfig{
			Addr:      c.Storage.Redis.Addr,
			Username:  c.Storage.Redis.Username,
			Password:  c.Storage.Redis.Password,
			DB:        c.Storage.Redis.DB,
			KeyPrefix: c.Storage.Redis.KeyPrefix,
		},
	}
}
