// Package config loads platform configuration from a YAML file with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Environment string         `yaml:"environment"` // "development" or "production"
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Mail        MailConfig     `yaml:"mail"`
	ListSync    ListSyncConfig `yaml:"list_sync"`
	Dispatch    DispatchConfig `yaml:"dispatch"`
	Tracking    TrackingConfig `yaml:"tracking"`
	Secrets     SecretsConfig  `yaml:"secrets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection settings for the usage counters.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MailConfig holds transactional mail provider settings (AWS SES).
type MailConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Account-level default sender identity, used when a newsletter
	// doesn't override it.
	DefaultFromName  string `yaml:"default_from_name"`
	DefaultFromEmail string `yaml:"default_from_email"`
	DefaultReplyTo   string `yaml:"default_reply_to"`
}

// ListSyncConfig holds the external list-management platform profile.
type ListSyncConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerWindow int    `yaml:"requests_per_window"`
	WindowMillis      int    `yaml:"window_millis"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	PageSize          int    `yaml:"page_size"`
}

// Window returns the rolling window as a duration.
func (c ListSyncConfig) Window() time.Duration {
	return time.Duration(c.WindowMillis) * time.Millisecond
}

// DispatchConfig holds bulk-send settings.
type DispatchConfig struct {
	DailyCap          int `yaml:"daily_cap"`
	BatchSize         int `yaml:"batch_size"`
	BatchPauseMillis  int `yaml:"batch_pause_millis"`
	SchedulerPollSecs int `yaml:"scheduler_poll_seconds"`
}

// BatchPause returns the inter-batch pause as a duration.
func (c DispatchConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMillis) * time.Millisecond
}

// TrackingConfig holds the public tracking endpoint settings.
type TrackingConfig struct {
	BaseURL    string `yaml:"base_url"`    // e.g. https://t.mailflow.io
	SigningKey string `yaml:"signing_key"` // HMAC key for tracking tokens
}

// SecretsConfig holds credential-encryption key material.
type SecretsConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // base64, 32 bytes
	ServerSecret  string `yaml:"server_secret"`  // non-production derivation fallback
}

// Production reports whether the config declares a production environment.
func (c *Config) Production() bool { return c.Environment == "production" }

// Load reads and parses the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads the YAML config, then overrides secrets and endpoints
// from the environment (a .env file is honored when present).
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.Region = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SecretKey = v
	}
	if v := os.Getenv("LIST_PLATFORM_BASE_URL"); v != "" {
		cfg.ListSync.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("SECRETS_ENCRYPTION_KEY"); v != "" {
		cfg.Secrets.EncryptionKey = v
	}
	if v := os.Getenv("SERVER_SECRET"); v != "" {
		cfg.Secrets.ServerSecret = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Mail.TimeoutSeconds == 0 {
		c.Mail.TimeoutSeconds = 30
	}
	if c.Mail.Region == "" {
		c.Mail.Region = "us-west-2"
	}
	if c.ListSync.TimeoutSeconds == 0 {
		c.ListSync.TimeoutSeconds = 60
	}
	if c.ListSync.RequestsPerWindow == 0 {
		c.ListSync.RequestsPerWindow = 10
	}
	if c.ListSync.WindowMillis == 0 {
		c.ListSync.WindowMillis = 1000
	}
	if c.ListSync.MaxConcurrent == 0 {
		c.ListSync.MaxConcurrent = 3
	}
	if c.ListSync.PageSize == 0 {
		c.ListSync.PageSize = 1000
	}
	if c.Dispatch.DailyCap == 0 {
		c.Dispatch.DailyCap = 100
	}
	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 5
	}
	if c.Dispatch.BatchPauseMillis == 0 {
		c.Dispatch.BatchPauseMillis = 100
	}
	if c.Dispatch.SchedulerPollSecs == 0 {
		c.Dispatch.SchedulerPollSecs = 30
	}
}

// Validate checks that required settings are present for the configured
// environment.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Tracking.BaseURL == "" {
		return fmt.Errorf("tracking.base_url is required")
	}
	if c.Tracking.SigningKey == "" {
		return fmt.Errorf("tracking.signing_key is required")
	}
	if c.Production() && c.Secrets.EncryptionKey == "" {
		return fmt.Errorf("secrets.encryption_key is required in production")
	}
	return nil
}
