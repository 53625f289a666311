package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lifescribe/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Fatalf("expected default max retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.WorkerCount("ocr") != 2 {
		t.Fatalf("expected default ocr pool size 2, got %d", cfg.WorkerCount("ocr"))
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[workers]
ocr = 4

[retry]
max_retries = 5
backoff_base_seconds = 2
backoff_cap_seconds = 60

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Workers.OCR != 4 {
		t.Fatalf("expected ocr workers 4, got %d", cfg.Workers.OCR)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBackoffCapBelowBase(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.BackoffBaseSeconds = 60
	cfg.Retry.BackoffCapSeconds = 10
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "backoff_cap_seconds") {
		t.Fatalf("expected backoff cap validation error, got %v", err)
	}
}

func TestValidateRequiresEnabledVendorPerCapability(t *testing.T) {
	cfg := config.Default()
	cfg.Vendors.Meilisearch.Enabled = false
	cfg.Vendors.Typesense.Enabled = false
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "index") {
		t.Fatalf("expected index vendor validation error, got %v", err)
	}
}

func TestVendorAPIKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("LIFESCRIBE_DEEPGRAM_API_KEY", "dg-secret")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[vendors.deepgram]\nenabled = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vendors.Deepgram.APIKey != "dg-secret" {
		t.Fatalf("expected API key from environment, got %q", cfg.Vendors.Deepgram.APIKey)
	}
}
