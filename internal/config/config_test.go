package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/shelfripper/internal/pages"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.BaseURL != "https://ebooks.zetamaths.com" {
		t.Errorf("Expected default base URL, got %s", cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.DPI != 96 {
		t.Errorf("Expected default dpi 96, got %v", cfg.DPI)
	}
	if cfg.Retry.MaxRetries != 0 {
		t.Errorf("Expected unbounded retries by default, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.RetryNotFound {
		t.Error("Expected retry_not_found to default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
base_url: http://localhost:9000
output_dir: /tmp/books
timeout: 45s
dpi: 150
log_level: debug
log_format: json
retry:
  max_retries: 4
  backoff: exponential
  delay: 500ms
  max_delay: 8s
  retry_not_found: true
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.BaseURL != "http://localhost:9000" {
		t.Errorf("Expected base URL override, got %s", cfg.BaseURL)
	}
	if cfg.OutputDir != "/tmp/books" {
		t.Errorf("Expected output dir /tmp/books, got %s", cfg.OutputDir)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Expected timeout 45s, got %v", cfg.Timeout)
	}
	if cfg.DPI != 150 {
		t.Errorf("Expected dpi 150, got %v", cfg.DPI)
	}
	if cfg.Port != 8888 {
		t.Errorf("Expected default port to survive, got %d", cfg.Port)
	}
	if cfg.Retry.MaxRetries != 4 || cfg.Retry.Backoff != "exponential" {
		t.Errorf("Unexpected retry settings %+v", cfg.Retry)
	}
	if cfg.Retry.Delay != 500*time.Millisecond || cfg.Retry.MaxDelay != 8*time.Second {
		t.Errorf("Unexpected retry delays %+v", cfg.Retry)
	}
	if !cfg.Retry.RetryNotFound {
		t.Error("Expected retry_not_found true")
	}
}

func TestLoadFromYAMLInvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("retry:\n  delay: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("Expected an error for an invalid duration")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHELFRIPPER_BASE_URL", "http://env.example")
	t.Setenv("SHELFRIPPER_TIMEOUT", "5s")
	t.Setenv("SHELFRIPPER_RETRY_MAX_RETRIES", "7")
	t.Setenv("SHELFRIPPER_RETRY_BACKOFF", "fixed")
	t.Setenv("SHELFRIPPER_RETRY_DELAY", "2s")
	t.Setenv("SHELFRIPPER_RETRY_NOT_FOUND", "true")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.BaseURL != "http://env.example" {
		t.Errorf("Expected env base URL, got %s", cfg.BaseURL)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.Retry.MaxRetries != 7 || cfg.Retry.Backoff != "fixed" || cfg.Retry.Delay != 2*time.Second {
		t.Errorf("Unexpected retry settings %+v", cfg.Retry)
	}
	if !cfg.Retry.RetryNotFound {
		t.Error("Expected retry_not_found from env")
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "SHELFRIPPER_TIMEOUT", value: "forever"},
		{key: "SHELFRIPPER_DPI", value: "high"},
		{key: "SHELFRIPPER_PORT", value: "http"},
		{key: "SHELFRIPPER_RETRY_MAX_RETRIES", value: "many"},
		{key: "SHELFRIPPER_RETRY_NOT_FOUND", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := Default()
			if err := cfg.LoadFromEnv(); err == nil {
				t.Errorf("Expected an error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestPrecedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("timeout: 10s\ndpi: 120\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SHELFRIPPER_TIMEOUT", "20s")

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	cfg = cfg.Merge(Config{OutputDir: "flags"})

	if cfg.Timeout != 20*time.Second {
		t.Errorf("Expected env to override file, got %v", cfg.Timeout)
	}
	if cfg.DPI != 120 {
		t.Errorf("Expected file dpi to survive, got %v", cfg.DPI)
	}
	if cfg.OutputDir != "flags" {
		t.Errorf("Expected flag override, got %s", cfg.OutputDir)
	}
	if cfg.Port != 8888 {
		t.Errorf("Expected default port, got %d", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "empty base url", modify: func(c *Config) { c.BaseURL = "" }},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }},
		{name: "zero dpi", modify: func(c *Config) { c.DPI = 0 }},
		{name: "bad port", modify: func(c *Config) { c.Port = 70000 }},
		{name: "negative retries", modify: func(c *Config) { c.Retry.MaxRetries = -1 }},
		{name: "negative delay", modify: func(c *Config) { c.Retry.Delay = -time.Second }},
		{name: "unknown backoff", modify: func(c *Config) { c.Retry.Backoff = "linear" }},
		{name: "unknown level", modify: func(c *Config) { c.LogLevel = "loud" }},
		{name: "unknown format", modify: func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "DEBUG"
	level, err := cfg.Level()
	if err != nil {
		t.Fatalf("Level: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("Expected debug, got %v", level)
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := Default()
	cfg.Retry = RetryConfig{MaxRetries: 3, Backoff: "Exponential", Delay: time.Second, MaxDelay: 4 * time.Second}

	policy, err := cfg.RetryPolicy()
	if err != nil {
		t.Fatalf("RetryPolicy: %v", err)
	}
	expected := pages.RetryPolicy{MaxRetries: 3, Backoff: pages.BackoffExponential, Delay: time.Second, MaxDelay: 4 * time.Second}
	if policy != expected {
		t.Errorf("Expected %+v, got %+v", expected, policy)
	}
}
