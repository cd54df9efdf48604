// ABOUTME: Configuration loading and parsing for shoplane-auth
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete shoplane-auth configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Codes    CodesConfig    `yaml:"codes"`
	Mail     MailConfig     `yaml:"mail"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`
}

// RedisConfig holds the optional Redis code-store configuration.
// When enabled, single-use codes live in Redis instead of the database.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AuthConfig holds token and hashing configuration
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	BcryptCost int    `yaml:"bcrypt_cost"`

	AccessTTL  time.Duration `yaml:"-"`
	RefreshTTL time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AccessTTLRaw  string `yaml:"access_ttl"`
	RefreshTTLRaw string `yaml:"refresh_ttl"`
}

// CodesConfig holds single-use code lifetimes
type CodesConfig struct {
	RecoveryTTL     time.Duration `yaml:"-"`
	VerificationTTL time.Duration `yaml:"-"`

	RecoveryTTLRaw     string `yaml:"recovery_ttl"`
	VerificationTTLRaw string `yaml:"verification_ttl"`
}

// MailConfig holds outbound mail configuration
type MailConfig struct {
	Sender   string `yaml:"sender"` // "smtp" or "log"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

// applyDefaults fills in values for fields the file omitted.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Auth.AccessTTLRaw == "" {
		c.Auth.AccessTTLRaw = "15m"
	}
	if c.Auth.RefreshTTLRaw == "" {
		c.Auth.RefreshTTLRaw = "720h"
	}
	if c.Codes.RecoveryTTLRaw == "" {
		c.Codes.RecoveryTTLRaw = "1h"
	}
	if c.Codes.VerificationTTLRaw == "" {
		c.Codes.VerificationTTLRaw = "24h"
	}
	if c.Mail.Sender == "" {
		c.Mail.Sender = "log"
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
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"memory\", got %q", c.Database.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	switch c.Mail.Sender {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			return fmt.Errorf("mail.host and mail.from are required for the smtp sender")
		}
	default:
		return fmt.Errorf("mail.sender must be \"smtp\" or \"log\", got %q", c.Mail.Sender)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.AccessTTL, err = time.ParseDuration(cfg.Auth.AccessTTLRaw); err != nil {
		return fmt.Errorf("parsing access_ttl %q: %w", cfg.Auth.AccessTTLRaw, err)
	}
	if cfg.Auth.RefreshTTL, err = time.ParseDuration(cfg.Auth.RefreshTTLRaw); err != nil {
		return fmt.Errorf("parsing refresh_ttl %q: %w", cfg.Auth.RefreshTTLRaw, err)
	}
	if cfg.Codes.RecoveryTTL, err = time.ParseDuration(cfg.Codes.RecoveryTTLRaw); err != nil {
		return fmt.Errorf("parsing recovery_ttl %q: %w", cfg.Codes.RecoveryTTLRaw, err)
	}
	if cfg.Codes.VerificationTTL, err = time.ParseDuration(cfg.Codes.VerificationTTLRaw); err != nil {
		return fmt.Errorf("parsing verification_ttl %q: %w", cfg.Codes.VerificationTTLRaw, err)
	}

	return nil
}
