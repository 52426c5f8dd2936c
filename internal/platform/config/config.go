// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles client-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. A '.env' file in the
working directory is loaded first when present.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (token store, session, voice) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Token Store Drivers

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// # Configuration Schema

// Config holds all runtime configuration for the BizMap client.
type Config struct {

	// External REST API
	APIBaseURL  string        `env:"BIZMAP_API_BASE_URL" envDefault:"http://127.0.0.1:8000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT"        envDefault:"15s"`

	// Local shell server
	ServerPort  string `env:"SERVER_PORT"  envDefault:"5173"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Durable token storage
	TokenStore       string `env:"TOKEN_STORE"        envDefault:"sqlite"`
	TokenStorePath   string `env:"TOKEN_STORE_PATH"   envDefault:"./data/bizmap-session.db"`
	TokenStorePrefix string `env:"TOKEN_STORE_PREFIX" envDefault:"bizmap:"`
	RedisURL         string `env:"REDIS_URL"          envDefault:"redis://127.0.0.1:6379/0"`

	// TokenStoreSecret seals persisted values at rest when set.
	TokenStoreSecret string `env:"TOKEN_STORE_SECRET"`

	// Session timing
	ExpiryBuffer         time.Duration `env:"EXPIRY_BUFFER"          envDefault:"30s"`
	RefreshCheckInterval time.Duration `env:"REFRESH_CHECK_INTERVAL" envDefault:"60s"`
	RefreshWindow        time.Duration `env:"REFRESH_WINDOW"         envDefault:"5m"`

	// Voice
	VoiceEnabled       bool          `env:"VOICE_ENABLED"         envDefault:"true"`
	VoiceLanguage      string        `env:"VOICE_LANGUAGE"        envDefault:"rw"`
	VoiceAutoSendDelay time.Duration `env:"VOICE_AUTO_SEND_DELAY" envDefault:"800ms"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TokenStore {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown TOKEN_STORE %q (want memory, redis or sqlite)", c.TokenStore)
	}

	switch c.VoiceLanguage {
	case "rw", "en", "fr":
	default:
		return fmt.Errorf("config: unsupported VOICE_LANGUAGE %q", c.VoiceLanguage)
	}

	if c.RefreshCheckInterval <= 0 {
		return fmt.Errorf("config: REFRESH_CHECK_INTERVAL must be positive")
	}

	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return nil
}

// IsDevelopment reports whether the client is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the client is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the loopback UI origins plus EXTRA_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	origins := []string{
		"http://localhost:" + c.ServerPort,
		"http://127.0.0.1:" + c.ServerPort,
	}
	for _, origin := range strings.Split(c.ExtraOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
