package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateEnv points the .env lookup at an empty directory so a developer's
// local .env cannot leak into assertions.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPSDESK_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("OPSDESK_API_BASE_URL", "")
}

func TestLoad_valid(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://api.shop.example.com/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v, want 15s", cfg.API.Timeout)
	}
	if cfg.API.Retry.MaxAttempts != 3 {
		t.Errorf("API.Retry.MaxAttempts = %d, want 3", cfg.API.Retry.MaxAttempts)
	}
	if cfg.API.Retry.BackoffMax != 2*time.Second {
		t.Errorf("API.Retry.BackoffMax = %v, want default 2s", cfg.API.Retry.BackoffMax)
	}
	if cfg.API.Breaker.FailureThreshold != 3 || cfg.API.Breaker.Cooldown != 30*time.Second {
		t.Errorf("API.Breaker = %+v, want threshold 3 and default cooldown", cfg.API.Breaker)
	}
	if cfg.Auth.TokenKey != "admin_token" {
		t.Errorf("Auth.TokenKey = %q", cfg.Auth.TokenKey)
	}
	if cfg.Auth.Store.Driver != "memory" {
		t.Errorf("Auth.Store.Driver = %q", cfg.Auth.Store.Driver)
	}
	if !cfg.Stores.DiscardStale {
		t.Error("Stores.DiscardStale = false, want true")
	}
	if cfg.Stores.OperationLogCapacity != 25 {
		t.Errorf("Stores.OperationLogCapacity = %d, want 25", cfg.Stores.OperationLogCapacity)
	}
	if cfg.Export.S3.Bucket != "statements" || cfg.Export.S3.Region != "eu-west-1" {
		t.Errorf("Export.S3 = %+v", cfg.Export.S3)
	}
	if cfg.Portal.Port != 9090 {
		t.Errorf("Portal.Port = %d, want 9090", cfg.Portal.Port)
	}
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Exporter != "otlp" {
		t.Errorf("Tracing = %+v", cfg.Observability.Tracing)
	}
}

func TestLoad_missing_file(t *testing.T) {
	isolateEnv(t)
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_default_file_uses_env(t *testing.T) {
	isolateEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPSDESK_API_BASE_URL", "http://localhost:8000")

	cfg, err := Load(DefaultPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 20*time.Second {
		t.Errorf("API.Timeout = %v, want default 20s", cfg.API.Timeout)
	}
}

func TestLoad_missing_base_url(t *testing.T) {
	isolateEnv(t)
	_, err := Load("testdata/missing_base_url.yaml")
	if err == nil {
		t.Fatal("Load() without api.base_url should return error")
	}
	if !strings.Contains(err.Error(), "api.base_url is required") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_invalid_collects_all_problems(t *testing.T) {
	isolateEnv(t)
	_, err := Load("testdata/invalid.yaml")
	if err == nil {
		t.Fatal("Load() should fail")
	}
	for _, want := range []string{
		"api.base_url must be an absolute http(s) URL",
		"api.timeout must be positive",
		"api.breaker.failure_threshold must not be negative",
		`auth.store.driver "keychain"`,
		"export.s3.bucket is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.API.Timeout != 20*time.Second {
		t.Errorf("default API.Timeout = %v, want 20s", cfg.API.Timeout)
	}
	if cfg.API.Retry.MaxAttempts != 1 {
		t.Errorf("default retry attempts = %d, want 1 (no automatic retry)", cfg.API.Retry.MaxAttempts)
	}
	if cfg.API.Breaker.FailureThreshold != 0 {
		t.Errorf("default breaker threshold = %d, want 0 (disabled)", cfg.API.Breaker.FailureThreshold)
	}
	if cfg.Stores.OperationLogCapacity != 50 {
		t.Errorf("default OperationLogCapacity = %d, want 50", cfg.Stores.OperationLogCapacity)
	}
	if cfg.Auth.TokenKey != "access_token" {
		t.Errorf("default TokenKey = %q", cfg.Auth.TokenKey)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPSDESK_API_BASE_URL", "https://staging.example.com")
	t.Setenv("OPSDESK_API_TIMEOUT", "5s")
	t.Setenv("OPSDESK_PORTAL_PORT", "3000")
	t.Setenv("OPSDESK_LOG_LEVEL", "error")
	t.Setenv("OPSDESK_TOKEN_DRIVER", "file")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://staging.example.com" {
		t.Errorf("API.BaseURL = %q, want env override", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.Portal.Port != 3000 {
		t.Errorf("Portal.Port = %d, want 3000 (env override)", cfg.Portal.Port)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Store.Driver != "file" {
		t.Errorf("Auth.Store.Driver = %q, want file", cfg.Auth.Store.Driver)
	}
}

func TestLoad_dotenv(t *testing.T) {
	isolateEnv(t)
	os.Unsetenv("OPSDESK_API_BASE_URL")
	t.Cleanup(func() { os.Unsetenv("OPSDESK_API_BASE_URL") })

	envFile := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envFile, []byte("OPSDESK_API_BASE_URL=https://from-dotenv.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPSDESK_ENV_FILE", envFile)

	cfg, err := Load("testdata/missing_base_url.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://from-dotenv.example.com" {
		t.Errorf("API.BaseURL = %q, want value from .env", cfg.API.BaseURL)
	}
}

func TestValidate_redis_requires_addr_env(t *testing.T) {
	cfg := Defaults()
	cfg.API.BaseURL = "https://api.example.com"
	cfg.Auth.Store.Driver = "redis"
	cfg.Auth.Store.AddrEnv = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should require addr_env for redis")
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := Defaults()
	cfg.API.BaseURL = "https://api.example.com"
	cfg.Portal.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}
