package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.API.Listen != "127.0.0.1:8787" {
		t.Errorf("expected default listen 127.0.0.1:8787, got %q", cfg.API.Listen)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("expected info/json logging defaults, got %q/%q", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Agent.MaxConcurrentTasks != 5 {
		t.Errorf("expected 5 concurrent tasks, got %d", cfg.Agent.MaxConcurrentTasks)
	}
	if cfg.Agent.WatchdogTimeout != 5*time.Minute {
		t.Errorf("expected 5m watchdog, got %v", cfg.Agent.WatchdogTimeout)
	}
	if !cfg.Agent.AutoStart {
		t.Error("expected auto_start to default to true")
	}
	if cfg.Executor.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Executor.MaxRetries)
	}
	if cfg.Executor.RetryDelay != time.Second {
		t.Errorf("expected 1s retry delay, got %v", cfg.Executor.RetryDelay)
	}
	if cfg.Scheduler.TickInterval != time.Second {
		t.Errorf("expected 1s tick, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.DefaultInterval != 3600 {
		t.Errorf("expected 3600s default interval, got %d", cfg.Scheduler.DefaultInterval)
	}
	if cfg.Twitter.MaxResults != 100 {
		t.Errorf("expected 100 max results, got %d", cfg.Twitter.MaxResults)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected default model %q", cfg.Anthropic.Model)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("expected 5m cache ttl, got %v", cfg.Cache.TTL)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  listen: 0.0.0.0:9090
log:
  level: debug
  format: console
executor:
  max_retries: 5
  retry_delay: 250ms
scheduler:
  default_interval: 60
twitter:
  bearer_token: file-token
cache:
  redis_url: redis://localhost:6379/0
workflows:
  dir: ./workflows
  watch: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Listen != "0.0.0.0:9090" {
		t.Errorf("expected listen override, got %q", cfg.API.Listen)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("expected debug/console, got %q/%q", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Executor.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Executor.MaxRetries)
	}
	if cfg.Executor.RetryDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms retry delay, got %v", cfg.Executor.RetryDelay)
	}
	if cfg.Scheduler.DefaultInterval != 60 {
		t.Errorf("expected 60s default interval, got %d", cfg.Scheduler.DefaultInterval)
	}
	if cfg.Twitter.BearerToken != "file-token" {
		t.Errorf("expected bearer token from file, got %q", cfg.Twitter.BearerToken)
	}
	if cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("expected redis url, got %q", cfg.Cache.RedisURL)
	}
	if cfg.Workflows.Dir != "./workflows" || !cfg.Workflows.Watch {
		t.Errorf("expected workflows dir+watch, got %q/%v", cfg.Workflows.Dir, cfg.Workflows.Watch)
	}

	// Untouched keys keep their defaults.
	if cfg.Agent.MaxConcurrentTasks != 5 {
		t.Errorf("expected default concurrency to survive, got %d", cfg.Agent.MaxConcurrentTasks)
	}
	if cfg.Twitter.MaxResults != 100 {
		t.Errorf("expected default max results to survive, got %d", cfg.Twitter.MaxResults)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
executor:
  max_retries: 5
`)

	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("RETRY_DELAY", "2s")
	t.Setenv("WARBLE_LISTEN", "127.0.0.1:9999")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Executor.MaxRetries != 7 {
		t.Errorf("expected env to beat file, got %d retries", cfg.Executor.MaxRetries)
	}
	if cfg.Executor.RetryDelay != 2*time.Second {
		t.Errorf("expected 2s retry delay from env, got %v", cfg.Executor.RetryDelay)
	}
	if cfg.API.Listen != "127.0.0.1:9999" {
		t.Errorf("expected listen from env, got %q", cfg.API.Listen)
	}
	if cfg.Anthropic.APIKey != "env-key" {
		t.Errorf("expected api key from env, got %q", cfg.Anthropic.APIKey)
	}
}

func TestLoadExpandsSecretReferences(t *testing.T) {
	path := writeConfig(t, `
twitter:
  bearer_token: ${WARBLE_TEST_BEARER}
`)

	t.Setenv("WARBLE_TEST_BEARER", "expanded-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Twitter.BearerToken != "expanded-token" {
		t.Errorf("expected expanded token, got %q", cfg.Twitter.BearerToken)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.API.Listen = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero concurrency", func(c *Config) { c.Agent.MaxConcurrentTasks = 0 }},
		{"zero watchdog", func(c *Config) { c.Agent.WatchdogTimeout = 0 }},
		{"zero retries", func(c *Config) { c.Executor.MaxRetries = 0 }},
		{"negative retry delay", func(c *Config) { c.Executor.RetryDelay = -time.Second }},
		{"zero tick", func(c *Config) { c.Scheduler.TickInterval = 0 }},
		{"zero default interval", func(c *Config) { c.Scheduler.DefaultInterval = 0 }},
		{"zero max results", func(c *Config) { c.Twitter.MaxResults = 0 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warble.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}
