// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for floret.
//
// Sources, in order of precedence:
//   - environment variables (FLORET_*)
//   - the TOML config file
//   - built-in defaults
//
// A .env file next to the working directory is loaded first so local
// setups can keep credentials out of the shell profile.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete floret configuration.
type Config struct {
	// API configuration
	API APIConfig `toml:"api"`

	// Retry configuration for rate-limited requests
	Retry RetryConfig `toml:"retry"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`

	// Registry configuration
	Registry RegistryConfig `toml:"registry"`
}

// APIConfig holds endpoint and credential settings.
type APIConfig struct {
	// TextURL is the base URL of the text endpoint.
	TextURL string `toml:"text_url"`
	// ImageURL is the base URL of the image endpoint.
	ImageURL string `toml:"image_url"`
	// Token is the access token sent with every request.
	Token string `toml:"token"`
	// Referrer identifies the client to the service.
	Referrer string `toml:"referrer"`
}

// RetryConfig tunes the rate-limit retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `toml:"max_retries"`
	// BackoffMillis scales the linear backoff: attempt * BackoffMillis.
	BackoffMillis int `toml:"backoff_millis"`
}

// Backoff returns the backoff base as a duration.
func (r RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMillis) * time.Millisecond
}

// StorageConfig selects and locates the conversation backend.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`
	// Path is the snapshot file or database path. Empty means the
	// default under the user config directory.
	Path string `toml:"path"`
}

// RegistryConfig locates the optional model overlay.
type RegistryConfig struct {
	// OverlayPath is a TOML file of model records merged over the
	// builtin table. Empty disables the overlay.
	OverlayPath string `toml:"overlay_path"`
	// WatchOverlay reloads the overlay when the file changes.
	WatchOverlay bool `toml:"watch_overlay"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			TextURL:  "https://text.pollinations.ai",
			ImageURL: "https://image.pollinations.ai",
		},
		Retry: RetryConfig{
			MaxRetries:    2,
			BackoffMillis: 1000,
		},
		Storage: StorageConfig{
			Backend: "file",
		},
	}
}

// DefaultStoragePath returns the default conversation snapshot location.
func DefaultStoragePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".floret", "conversations.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from path (TOML), layering env overrides on
// top. A missing file yields the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	// Best effort: a missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays FLORET_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FLORET_TEXT_URL"); v != "" {
		cfg.API.TextURL = v
	}
	if v := os.Getenv("FLORET_IMAGE_URL"); v != "" {
		cfg.API.ImageURL = v
	}
	if v := os.Getenv("FLORET_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("FLORET_REFERRER"); v != "" {
		cfg.API.Referrer = v
	}
	if v := os.Getenv("FLORET_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("FLORET_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FLORET_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.API.TextURL == "" {
		return fmt.Errorf("api.text_url must not be empty")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be \"file\" or \"sqlite\", got %q", c.Storage.Backend)
	}
	return nil
}
