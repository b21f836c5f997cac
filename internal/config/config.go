// ABOUTME: Configuration loading and parsing for teable-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete teable-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Vault    VaultConfig    `yaml:"vault"`
	Auth     AuthConfig     `yaml:"auth"`
	Sessions SessionsConfig `yaml:"sessions"`
	Billing  BillingConfig  `yaml:"billing"`
	Teable   TeableConfig   `yaml:"teable"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VaultConfig holds the credential vault key.
// The key is a 64-character hex string (32 bytes, AES-256).
type VaultConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// AuthConfig holds admin authentication configuration
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// SessionsConfig holds MCP session lifecycle tuning
type SessionsConfig struct {
	IdleTimeout time.Duration `yaml:"-"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`

	// Raw string value for YAML unmarshaling
	IdleTimeoutRaw string `yaml:"idle_timeout"`
}

// BillingConfig holds checkout/webhook glue configuration
type BillingConfig struct {
	WebhookSecret         string `yaml:"webhook_secret"`
	CheckoutURL           string `yaml:"checkout_url"`
	PaymentLinkPro        string `yaml:"payment_link_pro"`
	PaymentLinkEnterprise string `yaml:"payment_link_enterprise"`
	FrontendURL           string `yaml:"frontend_url"`
}

// TeableConfig holds upstream defaults for newly provisioned tenants
type TeableConfig struct {
	DefaultBaseURL string `yaml:"default_base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8080"
	}
	if c.Teable.DefaultBaseURL == "" {
		c.Teable.DefaultBaseURL = "https://app.teable.ai/api"
	}
	if c.Sessions.IdleTimeoutRaw == "" {
		c.Sessions.IdleTimeoutRaw = "30m"
	}
	if c.Sessions.RateLimit == 0 {
		c.Sessions.RateLimit = 10
	}
	if c.Sessions.RateBurst == 0 {
		c.Sessions.RateBurst = 20
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// The vault key is never defaulted: serving without it would mean serving
	// tenants whose credentials cannot be decrypted.
	if c.Vault.EncryptionKey == "" {
		return fmt.Errorf("vault.encryption_key is required")
	}
	key, err := hex.DecodeString(c.Vault.EncryptionKey)
	if err != nil {
		return fmt.Errorf("vault.encryption_key must be hex: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("vault.encryption_key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Sessions.RateLimit < 0 {
		return fmt.Errorf("sessions.rate_limit must not be negative")
	}

	return nil
}

// VaultKey returns the decoded 32-byte vault key. Call Validate first.
func (c *Config) VaultKey() []byte {
	key, _ := hex.DecodeString(c.Vault.EncryptionKey)
	return key
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.IdleTimeoutRaw != "" {
		cfg.Sessions.IdleTimeout, err = time.ParseDuration(cfg.Sessions.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Sessions.IdleTimeoutRaw, err)
		}
	}

	return nil
}
