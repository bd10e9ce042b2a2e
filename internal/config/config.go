// Package config loads shelfripper settings from defaults, a YAML file and
// SHELFRIPPER_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/shelfripper/internal/document"
	"github.com/lehigh-university-libraries/shelfripper/internal/pages"
	"github.com/lehigh-university-libraries/shelfripper/internal/session"
)

const envPrefix = "SHELFRIPPER_"

// Config defines configuration for the shelfripper CLI and server.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	OutputDir string        `yaml:"output_dir"`
	Timeout   time.Duration `yaml:"timeout"`
	DPI       float64       `yaml:"dpi"`
	Port      int           `yaml:"port"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	Retry     RetryConfig   `yaml:"retry"`
}

// RetryConfig defines how failed page downloads are retried.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       string        `yaml:"backoff"`
	Delay         time.Duration `yaml:"delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	RetryNotFound bool          `yaml:"retry_not_found"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseURL:   session.DefaultBaseURL,
		OutputDir: ".",
		Timeout:   30 * time.Second,
		DPI:       document.DefaultDPI,
		Port:      8888,
		LogLevel:  "info",
		LogFormat: "text",
		Retry: RetryConfig{
			Backoff: string(pages.BackoffNone),
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	BaseURL   string          `yaml:"base_url"`
	OutputDir string          `yaml:"output_dir"`
	Timeout   string          `yaml:"timeout"`
	DPI       float64         `yaml:"dpi"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Retry     yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	MaxRetries    int    `yaml:"max_retries"`
	Backoff       string `yaml:"backoff"`
	Delay         string `yaml:"delay"`
	MaxDelay      string `yaml:"max_delay"`
	RetryNotFound bool   `yaml:"retry_not_found"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.DPI != 0 {
		cfg.DPI = yc.DPI
	}
	if yc.Port != 0 {
		cfg.Port = yc.Port
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogFormat != "" {
		cfg.LogFormat = yc.LogFormat
	}
	if yc.Retry.MaxRetries != 0 {
		cfg.Retry.MaxRetries = yc.Retry.MaxRetries
	}
	if yc.Retry.Backoff != "" {
		cfg.Retry.Backoff = yc.Retry.Backoff
	}
	if yc.Retry.Delay != "" {
		d, err := time.ParseDuration(yc.Retry.Delay)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse retry.delay: %w", err)
		}
		cfg.Retry.Delay = d
	}
	if yc.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(yc.Retry.MaxDelay)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse retry.max_delay: %w", err)
		}
		cfg.Retry.MaxDelay = d
	}
	cfg.Retry.RetryNotFound = yc.Retry.RetryNotFound

	return cfg, nil
}

// LoadFromEnv overrides c with SHELFRIPPER_ environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(envPrefix + "BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse %sTIMEOUT: %w", envPrefix, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(envPrefix + "DPI"); v != "" {
		dpi, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %sDPI: %w", envPrefix, err)
		}
		c.DPI = dpi
	}
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse %sPORT: %w", envPrefix, err)
		}
		c.Port = n
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(envPrefix + "RETRY_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse %sRETRY_MAX_RETRIES: %w", envPrefix, err)
		}
		c.Retry.MaxRetries = n
	}
	if v := os.Getenv(envPrefix + "RETRY_BACKOFF"); v != "" {
		c.Retry.Backoff = v
	}
	if v := os.Getenv(envPrefix + "RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse %sRETRY_DELAY: %w", envPrefix, err)
		}
		c.Retry.Delay = d
	}
	if v := os.Getenv(envPrefix + "RETRY_MAX_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse %sRETRY_MAX_DELAY: %w", envPrefix, err)
		}
		c.Retry.MaxDelay = d
	}
	if v := os.Getenv(envPrefix + "RETRY_NOT_FOUND"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("failed to parse %sRETRY_NOT_FOUND: %w", envPrefix, err)
		}
		c.Retry.RetryNotFound = b
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.DPI <= 0 {
		return errors.New("config: dpi must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("config: retry.max_retries must not be negative")
	}
	if c.Retry.Delay < 0 || c.Retry.MaxDelay < 0 {
		return errors.New("config: retry delays must not be negative")
	}
	if _, err := pages.ParseBackoff(c.Retry.Backoff); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.DPI != 0 {
		c.DPI = override.DPI
	}
	if override.Port != 0 {
		c.Port = override.Port
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if override.Retry.MaxRetries != 0 {
		c.Retry.MaxRetries = override.Retry.MaxRetries
	}
	if override.Retry.Backoff != "" {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	if override.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = override.Retry.MaxDelay
	}
	if override.Retry.RetryNotFound {
		c.Retry.RetryNotFound = true
	}
	return c
}

// Level parses LogLevel into a slog level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return level, nil
}

// RetryPolicy converts the retry settings for the page fetcher.
func (c *Config) RetryPolicy() (pages.RetryPolicy, error) {
	backoff, err := pages.ParseBackoff(c.Retry.Backoff)
	if err != nil {
		return pages.RetryPolicy{}, err
	}
	return pages.RetryPolicy{
		MaxRetries:    c.Retry.MaxRetries,
		Backoff:       backoff,
		Delay:         c.Retry.Delay,
		MaxDelay:      c.Retry.MaxDelay,
		RetryNotFound: c.Retry.RetryNotFound,
	}, nil
}
