// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.TextURL != "https://text.pollinations.ai" {
		t.Errorf("TextURL = %q", cfg.API.TextURL)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Backoff() != time.Second {
		t.Errorf("Backoff = %v", cfg.Retry.Backoff())
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
token = "secret"
referrer = "my-app"

[retry]
max_retries = 5
backoff_millis = 250

[storage]
backend = "sqlite"
path = "/tmp/floret.db"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Token != "secret" || cfg.API.Referrer != "my-app" {
		t.Errorf("credentials = %q / %q", cfg.API.Token, cfg.API.Referrer)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.Backoff() != 250*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/floret.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	// Untouched fields keep defaults.
	if cfg.API.TextURL != "https://text.pollinations.ai" {
		t.Errorf("TextURL = %q", cfg.API.TextURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api]\ntoken = \"from-file\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FLORET_TOKEN", "from-env")
	t.Setenv("FLORET_MAX_RETRIES", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Token != "from-env" {
		t.Errorf("Token = %q, want env value", cfg.API.Token)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d", cfg.Retry.MaxRetries)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = Default()
	cfg.API.TextURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty text_url")
	}

	cfg = Default()
	cfg.Retry.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative retries")
	}
}
