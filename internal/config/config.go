// Package config loads and validates application configuration from YAML files,
// an optional .env file, and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given. It may be
// absent; every other path must exist.
const DefaultPath = "opsdesk.yaml"

// Config is the root application configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Auth          AuthConfig          `yaml:"auth"`
	Stores        StoresConfig        `yaml:"stores"`
	Export        ExportConfig        `yaml:"export"`
	Portal        PortalConfig        `yaml:"portal"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// APIConfig describes the remote REST backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RetryConfig describes automatic retry of idempotent reads. MaxAttempts of 1
// disables retrying; failures are then surfaced for a manual retry.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// BreakerConfig describes the circuit breaker in front of the backend. A
// FailureThreshold of 0 disables it.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// AuthConfig describes where the bearer token is read from.
type AuthConfig struct {
	TokenKey string           `yaml:"token_key"`
	Store    TokenStoreConfig `yaml:"store"`
}

// TokenStoreConfig selects the persistent token storage.
type TokenStoreConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	AddrEnv string `yaml:"addr_env"`
	DB      int    `yaml:"db"`
}

// StoresConfig tunes the state containers.
type StoresConfig struct {
	DiscardStale         bool `yaml:"discard_stale"`
	OperationLogCapacity int  `yaml:"operation_log_capacity"`
	PerPage              int  `yaml:"per_page"`
}

// ExportConfig describes where downloaded statements are written.
type ExportConfig struct {
	Driver string   `yaml:"driver"`
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

// S3Config describes an S3 bucket used as export target.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// PortalConfig describes the local portal HTTP server.
type PortalConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			Timeout: 20 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:       1,
				BackoffInitial:    200 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 0,
				Cooldown:         30 * time.Second,
			},
		},
		Auth: AuthConfig{
			TokenKey: "access_token",
			Store: TokenStoreConfig{
				Driver:  "file",
				AddrEnv: "OPSDESK_REDIS_ADDR",
			},
		},
		Stores: StoresConfig{
			OperationLogCapacity: 50,
			PerPage:              20,
		},
		Export: ExportConfig{
			Driver: "file",
			Dir:    ".",
		},
		Portal: PortalConfig{
			Port:            8088,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RefreshInterval: 0,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "stdout",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, loads the .env file if one exists, applies
// environment variable overrides, and validates the result. A missing file
// is tolerated only for DefaultPath or an empty path.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		case err != nil:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from OPSDESK_ENV_FILE (or
// ./.env). Variables already set in the environment win.
func loadDotEnv() error {
	path := os.Getenv("OPSDESK_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: loading %s: %w", path, err)
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "api.base_url must be an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	if c.API.Retry.MaxAttempts < 1 {
		errs = append(errs, "api.retry.max_attempts must be at least 1")
	}
	if c.API.Breaker.FailureThreshold < 0 {
		errs = append(errs, "api.breaker.failure_threshold must not be negative")
	}
	if c.Auth.TokenKey == "" {
		errs = append(errs, "auth.token_key is required")
	}

	switch c.Auth.Store.Driver {
	case "file", "memory":
	case "redis":
		if c.Auth.Store.AddrEnv == "" {
			errs = append(errs, "auth.store.addr_env is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("auth.store.driver %q is not one of file, redis, memory", c.Auth.Store.Driver))
	}

	switch c.Export.Driver {
	case "file":
	case "s3":
		if c.Export.S3.Bucket == "" {
			errs = append(errs, "export.s3.bucket is required for the s3 driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("export.driver %q is not one of file, s3", c.Export.Driver))
	}

	if c.Stores.OperationLogCapacity < 1 {
		errs = append(errs, "stores.operation_log_capacity must be at least 1")
	}
	if c.Portal.Port < 1 || c.Portal.Port > 65535 {
		errs = append(errs, "portal.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads OPSDESK_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPSDESK_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("OPSDESK_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("OPSDESK_API_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("OPSDESK_TOKEN_DRIVER"); v != "" {
		cfg.Auth.Store.Driver = v
	}
	if v := os.Getenv("OPSDESK_TOKEN_PATH"); v != "" {
		cfg.Auth.Store.Path = v
	}
	if v := os.Getenv("OPSDESK_PORTAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Portal.Port = port
		}
	}
	if v := os.Getenv("OPSDESK_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("OPSDESK_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
}
