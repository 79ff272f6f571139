package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// DSN is the connection string. Postgres URLs and SQLite paths are both accepted.
	DSN string `yaml:"dsn"`
}

// RedisConfig holds redis connection settings for the notification stream.
type RedisConfig struct {
	// Addr is the redis host:port.
	Addr string `yaml:"addr"`
}

// StripeConfig holds platform Stripe credentials and checkout redirect URLs.
type StripeConfig struct {
	// SecretKey is the platform secret API key.
	SecretKey string `yaml:"secret-key"`
	// WebhookSecret verifies webhook event signatures.
	WebhookSecret string `yaml:"webhook-secret"`
	// SuccessURL is where checkout redirects after payment.
	SuccessURL string `yaml:"success-url"`
	// CancelURL is where checkout redirects on abandonment.
	CancelURL string `yaml:"cancel-url"`
}

// CoinPaymentsConfig holds settings for the CoinPayments HTTP API.
type CoinPaymentsConfig struct {
	// Endpoint is the API base URL. Empty uses the production endpoint.
	Endpoint string `yaml:"endpoint"`
}

// JWTConfig holds token signing settings for the owner and operator APIs.
type JWTConfig struct {
	// Secret signs HS256 tokens.
	Secret string `yaml:"secret"`
	// ExpireHours is token lifetime in hours. Zero means 24.
	ExpireHours int `yaml:"expire-hours"`
}

// Expiry returns the configured token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	hours := c.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the logrus level name. Empty means "info".
	Level string `yaml:"level"`
	// File is the rotated log file path. Empty logs to stderr only.
	File string `yaml:"file"`
	// MaxSizeMB caps a single log file before rotation.
	MaxSizeMB int `yaml:"max-size-mb"`
	// MaxBackups caps retained rotated files.
	MaxBackups int `yaml:"max-backups"`
	// MaxAgeDays caps retained file age.
	MaxAgeDays int `yaml:"max-age-days"`
}

// Config is the root application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Stripe       StripeConfig       `yaml:"stripe"`
	CoinPayments CoinPaymentsConfig `yaml:"coinpayments"`
	JWT          JWTConfig          `yaml:"jwt"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("read config: %w", errRead)
	}
	var cfg Config
	if errParse := yaml.Unmarshal(data, &cfg); errParse != nil {
		return nil, fmt.Errorf("parse config: %w", errParse)
	}
	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	return nil
}
