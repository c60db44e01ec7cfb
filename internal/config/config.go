package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Content   ContentConfig   `mapstructure:"content"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // SQLite path or :memory:
}

// PollerConfig holds feed polling settings
type PollerConfig struct {
	TickInterval    string `mapstructure:"tick_interval"`    // how often to scan for due feeds
	FetchTimeout    string `mapstructure:"fetch_timeout"`    // per-feed fetch budget
	MaxConcurrent   int    `mapstructure:"max_concurrent"`   // global poll worker cap
	DefaultInterval int    `mapstructure:"default_interval"` // minutes, for feeds without one
}

// TickDuration returns the parsed tick interval.
func (p PollerConfig) TickDuration() time.Duration {
	return parseDuration(p.TickInterval, time.Minute)
}

// FetchTimeoutDuration returns the parsed per-feed fetch timeout.
func (p PollerConfig) FetchTimeoutDuration() time.Duration {
	return parseDuration(p.FetchTimeout, 30*time.Second)
}

// ContentConfig holds full-content fetching settings
type ContentConfig struct {
	Enabled    bool   `mapstructure:"enabled"` // global feature flag, read once at start
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
	MaxBody    int64  `mapstructure:"max_body"` // bytes read from a page at most
}

// TimeoutDuration returns the parsed per-fetch timeout.
func (c ContentConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 20*time.Second)
}

// ClassifyConfig holds classifier settings
type ClassifyConfig struct {
	MinScore float64 `mapstructure:"min_score"` // winning-category threshold
}

// SchedulerConfig holds daemon scheduling settings
type SchedulerConfig struct {
	SweepCron string `mapstructure:"sweep_cron"` // retries held-unclassified articles
}

// RateLimitConfig holds outbound rate limiting settings
type RateLimitConfig struct {
	FeedRequestsPerSecond    float64 `mapstructure:"feed_requests_per_second"`
	ContentRequestsPerSecond float64 `mapstructure:"content_requests_per_second"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".secalert"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("SECALERT")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.dsn", "SECALERT_DATABASE_DSN")
	v.BindEnv("content.enabled", "SECALERT_CONTENT_ENABLED")
	v.BindEnv("poller.max_concurrent", "SECALERT_POLLER_MAX_CONCURRENT")
	v.BindEnv("poller.tick_interval", "SECALERT_POLLER_TICK_INTERVAL")
	v.BindEnv("scheduler.sweep_cron", "SECALERT_SCHEDULER_SWEEP_CRON")
	v.BindEnv("logging.level", "SECALERT_LOGGING_LEVEL")
	v.BindEnv("logging.format", "SECALERT_LOGGING_FORMAT")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dsn", "./data/secalert.db")

	// Poller defaults
	v.SetDefault("poller.tick_interval", "1m")
	v.SetDefault("poller.fetch_timeout", "30s")
	v.SetDefault("poller.max_concurrent", 5)
	v.SetDefault("poller.default_interval", 30)

	// Content defaults
	v.SetDefault("content.enabled", true)
	v.SetDefault("content.timeout", "20s")
	v.SetDefault("content.max_retries", 3)
	v.SetDefault("content.max_body", int64(5*1024*1024))

	// Classifier defaults
	v.SetDefault("classify.min_score", 1.0)

	// Scheduler defaults
	v.SetDefault("scheduler.sweep_cron", "*/15 * * * *") // retry held articles every 15 min

	// Rate limit defaults
	v.SetDefault("rate_limit.feed_requests_per_second", 2.0)
	v.SetDefault("rate_limit.content_requests_per_second", 1.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Poller.MaxConcurrent <= 0 {
		return fmt.Errorf("poller.max_concurrent must be positive")
	}
	if c.Content.MaxRetries < 0 {
		return fmt.Errorf("content.max_retries must not be negative")
	}
	if c.Classify.MinScore <= 0 {
		return fmt.Errorf("classify.min_score must be positive")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
