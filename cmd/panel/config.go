package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/panel/internal/core/pricing"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Security  SecurityConfig  `mapstructure:"security"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// DSN defaults to <data_dir>/panel.db.
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// SharedSecret is required in X-Panel-Secret when set.
	SharedSecret string `mapstructure:"shared_secret"`
}

// LifecycleConfig holds server lifecycle configuration.
type LifecycleConfig struct {
	RestartSettleDelay  time.Duration `mapstructure:"restart_settle_delay"`
	InstantProvisioning bool          `mapstructure:"instant_provisioning"`
	ProvisioningTimeout time.Duration `mapstructure:"provisioning_timeout"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
}

// BillingConfig holds pricing configuration.
type BillingConfig struct {
	// Rounding is half_up (default) or half_even.
	Rounding string `mapstructure:"rounding"`
}

// SecurityConfig holds credential encryption configuration.
type SecurityConfig struct {
	// EncryptionPassphrase enables sealing of server passwords at rest.
	// Set via PANEL_SECURITY_ENCRYPTION_PASSPHRASE.
	EncryptionPassphrase string `mapstructure:"encryption_passphrase"`
	EncryptionSalt       string `mapstructure:"encryption_salt"`
}

// CatalogConfig holds catalog seeding configuration.
type CatalogConfig struct {
	// File is a YAML catalog imported at startup.
	File string `mapstructure:"file"`
}

// GatewayConfig holds API gateway registration configuration.
type GatewayConfig struct {
	// URL enables registration when set.
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	PanelURL string `mapstructure:"panel_url"`
	RoleExpr string `mapstructure:"role_expr"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.shared_secret", "")
	v.SetDefault("lifecycle.restart_settle_delay", "5s")
	v.SetDefault("lifecycle.instant_provisioning", true)
	v.SetDefault("lifecycle.provisioning_timeout", "30m")
	v.SetDefault("lifecycle.sweep_interval", "30s")
	v.SetDefault("billing.rounding", "half_up")
	v.SetDefault("security.encryption_passphrase", "")
	v.SetDefault("security.encryption_salt", "")
	v.SetDefault("catalog.file", "")
	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.panel_url", "")
	v.SetDefault("gateway.role_expr", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("PANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "panel.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := pricing.ParseRounding(c.Billing.Rounding); err != nil {
		return fmt.Errorf("billing.rounding: %w", err)
	}
	if c.Lifecycle.RestartSettleDelay <= 0 {
		return errors.New("lifecycle.restart_settle_delay must be positive")
	}
	if c.Lifecycle.SweepInterval <= 0 {
		return errors.New("lifecycle.sweep_interval must be positive")
	}
	if c.Gateway.URL != "" && c.Gateway.PanelURL == "" {
		return errors.New("gateway.panel_url is required when gateway.url is set")
	}
	if c.Security.EncryptionPassphrase != "" && len(c.Security.EncryptionSalt) < 8 {
		return errors.New("security.encryption_salt must be at least 8 characters when a passphrase is set")
	}
	return nil
}

// Rounding returns the configured rounding mode.
func (c *Config) Rounding() pricing.Rounding {
	r, _ := pricing.ParseRounding(c.Billing.Rounding)
	return r
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
