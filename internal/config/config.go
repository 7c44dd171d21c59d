package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/charmbracelet/log"
)

// Config holds all configuration for the backend server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Webhook  WebhookConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8000"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/autoreply.db"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`
}

// WebhookConfig holds the inbound webhook configuration.
type WebhookConfig struct {
	VerifyToken string `env:"WEBHOOK_VERIFY_TOKEN"`
	// ResponderFile journals outbound replies and DMs to a JSON lines file
	// instead of logging them. Intended for local development.
	ResponderFile string `env:"RESPONDER_FILE"`
}

// LogConfig holds logging configuration shared by every binary.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// ConsoleConfig holds configuration for the operator console.
type ConsoleConfig struct {
	Host          string        `env:"CONSOLE_HOST" envDefault:"127.0.0.1"`
	Port          int           `env:"CONSOLE_PORT" envDefault:"3000"`
	APIURL        string        `env:"API_URL" envDefault:"http://localhost:8000"`
	APITimeout    time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	SessionFile   string        `env:"SESSION_FILE" envDefault:"~/.config/autoreply/session"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionSecret string        `env:"SESSION_SECRET"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	LogPageSize   int           `env:"LOG_PAGE_SIZE" envDefault:"50"`
	Log           LogConfig
}

// Load loads backend configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.Webhook); err != nil {
		return nil, fmt.Errorf("parsing webhook config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// LoadConsole loads console configuration from environment variables.
func LoadConsole() (*ConsoleConfig, error) {
	cfg := &ConsoleConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing console config: %w", err)
	}
	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the console address in host:port format.
func (c *ConsoleConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	return c.Log.Validate()
}

// Validate checks if the console configuration is valid.
func (c *ConsoleConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API_URL is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}
	if c.LogPageSize <= 0 {
		return fmt.Errorf("LOG_PAGE_SIZE must be positive")
	}
	if c.SessionSecret != "" {
		if _, err := c.SessionSecretBytes(); err != nil {
			return err
		}
	}
	return c.Log.Validate()
}

// SessionSecretBytes returns the cookie encryption key. An empty secret
// returns nil, nil and the caller generates a random key.
func (c *ConsoleConfig) SessionSecretBytes() ([]byte, error) {
	if c.SessionSecret == "" {
		return nil, nil
	}
	// Try to decode as hex first (64 hex chars = 32 bytes)
	if len(c.SessionSecret) == 64 {
		decoded, err := hex.DecodeString(c.SessionSecret)
		if err == nil {
			return decoded, nil
		}
	}
	// Otherwise use as raw bytes (must be exactly 32 bytes)
	if len(c.SessionSecret) != 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be 32 bytes (or 64 hex characters)")
	}
	return []byte(c.SessionSecret), nil
}

// Validate checks the log level and format.
func (c *LogConfig) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch c.Format {
	case "text", "json", "logfmt":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be text, json or logfmt, got %q", c.Format)
	}
}

// NewLogger builds a logger writing to w.
func (c *LogConfig) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		level = log.InfoLevel
	}
	formatter := log.TextFormatter
	switch c.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	})
}
