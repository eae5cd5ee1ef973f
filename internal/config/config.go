// Package config loads daemon configuration from defaults, YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daemon.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Composio  ComposioConfig  `mapstructure:"composio"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
}

// APIConfig holds control plane listener settings.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AgentConfig holds agent lifecycle settings.
type AgentConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	WatchdogTimeout    time.Duration `mapstructure:"watchdog_timeout"`
	AutoStart          bool          `mapstructure:"auto_start"`
}

// ExecutorConfig holds retry policy settings.
type ExecutorConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SchedulerConfig holds scheduler cadence settings. DefaultInterval is in
// seconds and seeds schedule requests that carry no cadence of their own.
type SchedulerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	DefaultInterval int           `mapstructure:"default_interval"`
}

// TwitterConfig holds direct API client settings.
type TwitterConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	BearerToken    string        `mapstructure:"bearer_token"`
	UserID         string        `mapstructure:"user_id"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	MaxResults     int           `mapstructure:"max_results"`
}

// ComposioConfig holds action gateway settings. An empty APIKey disables the
// enhanced client entirely.
type ComposioConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig holds model planning settings. An empty APIKey limits the
// planner to keyword rules.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// CacheConfig holds result cache settings. An empty RedisURL disables the
// cache.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// WorkflowsConfig holds workflow definition directory settings.
type WorkflowsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// Load loads configuration. With an explicit path only that file is read;
// otherwise the search order is /etc/warble, the user config directory, then
// ./warble.yaml, each optional. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/warble")
		v.AddConfigPath(userConfigDir())
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}

		// A warble.yaml in the working directory overrides the system and
		// user files.
		if _, err := os.Stat("warble.yaml"); err == nil {
			local := viper.New()
			local.SetConfigFile("warble.yaml")
			if err := local.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading warble.yaml: %w", err)
			}
			if err := v.MergeConfigMap(local.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging warble.yaml: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Twitter.BearerToken = os.ExpandEnv(cfg.Twitter.BearerToken)
	cfg.Composio.APIKey = os.ExpandEnv(cfg.Composio.APIKey)
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{Listen: "127.0.0.1:8787"},
		Log: LogConfig{Level: "info", Format: "json"},
		Agent: AgentConfig{
			MaxConcurrentTasks: 5,
			WatchdogTimeout:    5 * time.Minute,
			AutoStart:          true,
		},
		Executor: ExecutorConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Scheduler: SchedulerConfig{
			TickInterval:    time.Second,
			DefaultInterval: 3600,
		},
		Twitter: TwitterConfig{
			RateLimitDelay: time.Second,
			MaxResults:     100,
		},
		Anthropic: AnthropicConfig{Model: "claude-sonnet-4-20250514"},
		Cache:     CacheConfig{TTL: 5 * time.Minute},
	}
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, console", c.Log.Format)
	}
	if c.Agent.MaxConcurrentTasks < 1 {
		return fmt.Errorf("agent.max_concurrent_tasks must be at least 1, got %d", c.Agent.MaxConcurrentTasks)
	}
	if c.Agent.WatchdogTimeout <= 0 {
		return fmt.Errorf("agent.watchdog_timeout must be positive, got %v", c.Agent.WatchdogTimeout)
	}
	if c.Executor.MaxRetries < 1 {
		return fmt.Errorf("executor.max_retries must be at least 1, got %d", c.Executor.MaxRetries)
	}
	if c.Executor.RetryDelay < 0 {
		return fmt.Errorf("executor.retry_delay must not be negative, got %v", c.Executor.RetryDelay)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive, got %v", c.Scheduler.TickInterval)
	}
	if c.Scheduler.DefaultInterval < 1 {
		return fmt.Errorf("scheduler.default_interval must be at least 1 second, got %d", c.Scheduler.DefaultInterval)
	}
	if c.Twitter.MaxResults < 1 {
		return fmt.Errorf("twitter.max_results must be at least 1, got %d", c.Twitter.MaxResults)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen", "127.0.0.1:8787")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("agent.max_concurrent_tasks", 5)
	v.SetDefault("agent.watchdog_timeout", "5m")
	v.SetDefault("agent.auto_start", true)

	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.retry_delay", "1s")

	v.SetDefault("scheduler.tick_interval", "1s")
	v.SetDefault("scheduler.default_interval", 3600)

	v.SetDefault("twitter.base_url", "")
	v.SetDefault("twitter.bearer_token", "")
	v.SetDefault("twitter.user_id", "")
	v.SetDefault("twitter.rate_limit_delay", "1s")
	v.SetDefault("twitter.max_results", 100)

	v.SetDefault("composio.base_url", "")
	v.SetDefault("composio.api_key", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("workflows.dir", "")
	v.SetDefault("workflows.watch", false)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("api.listen", "WARBLE_LISTEN")
	v.BindEnv("log.level", "WARBLE_LOG_LEVEL")
	v.BindEnv("log.format", "WARBLE_LOG_FORMAT")
	v.BindEnv("executor.max_retries", "MAX_RETRIES")
	v.BindEnv("executor.retry_delay", "RETRY_DELAY")
	v.BindEnv("scheduler.default_interval", "DEFAULT_SCHEDULE_INTERVAL")
	v.BindEnv("twitter.bearer_token", "TWITTER_BEARER_TOKEN")
	v.BindEnv("twitter.user_id", "TWITTER_USER_ID")
	v.BindEnv("twitter.rate_limit_delay", "RATE_LIMIT_DELAY")
	v.BindEnv("twitter.max_results", "MAX_TWEETS_PER_REQUEST")
	v.BindEnv("composio.api_key", "COMPOSIO_API_KEY")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("cache.redis_url", "REDIS_URL")
}

// userConfigDir returns the per-user configuration directory.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "warble")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "warble")
	}
	return filepath.Join(home, ".config", "warble")
}
