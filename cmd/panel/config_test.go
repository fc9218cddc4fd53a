package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/panel/internal/core/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filepath.Join("data", "panel.db"), cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Lifecycle.RestartSettleDelay)
	assert.True(t, cfg.Lifecycle.InstantProvisioning)
	assert.Equal(t, 30*time.Minute, cfg.Lifecycle.ProvisioningTimeout)
	assert.Equal(t, 30*time.Second, cfg.Lifecycle.SweepInterval)
	assert.Equal(t, pricing.RoundHalfUp, cfg.Rounding())
	assert.Empty(t, cfg.Auth.SharedSecret)
	assert.Empty(t, cfg.Catalog.File)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

lifecycle:
  restart_settle_delay: 2s
  instant_provisioning: false
  provisioning_timeout: 0s

billing:
  rounding: half_even

auth:
  shared_secret: gw-secret
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Lifecycle.RestartSettleDelay)
	assert.False(t, cfg.Lifecycle.InstantProvisioning)
	assert.Zero(t, cfg.Lifecycle.ProvisioningTimeout)
	assert.Equal(t, pricing.RoundHalfEven, cfg.Rounding())
	assert.Equal(t, "gw-secret", cfg.Auth.SharedSecret)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("PANEL_SERVER_PORT", "3000")
	t.Setenv("PANEL_DATABASE_DSN", "/custom/path.db")
	t.Setenv("PANEL_LOG_LEVEL", "warn")
	t.Setenv("PANEL_LIFECYCLE_RESTART_SETTLE_DELAY", "10s")
	t.Setenv("PANEL_SECURITY_ENCRYPTION_PASSPHRASE", "correct horse")
	t.Setenv("PANEL_SECURITY_ENCRYPTION_SALT", "panel-salt")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Lifecycle.RestartSettleDelay)
	assert.Equal(t, "correct horse", cfg.Security.EncryptionPassphrase)
}

func TestLoadConfig_DataDirDerivesDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANEL_DATA_DIR", "/var/lib/panel")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/panel/panel.db", cfg.Database.DSN)
}

func TestLoadConfig_ExplicitDSNOverridesDataDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANEL_DATA_DIR", "/var/lib/panel")
	t.Setenv("PANEL_DATABASE_DSN", "/custom/path.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad rounding", map[string]string{"PANEL_BILLING_ROUNDING": "truncate"}},
		{"bad port", map[string]string{"PANEL_SERVER_PORT": "70000"}},
		{"zero settle delay", map[string]string{"PANEL_LIFECYCLE_RESTART_SETTLE_DELAY": "0s"}},
		{"passphrase without salt", map[string]string{"PANEL_SECURITY_ENCRYPTION_PASSPHRASE": "secret"}},
		{"gateway without panel url", map[string]string{"PANEL_GATEWAY_URL": "http://gw:8082"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level    string
		debugOut bool
		infoOut  bool
		warnOut  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"invalid", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: "json"}}, &buf)

			logger.Debug("d")
			assert.Equal(t, tt.debugOut, bytes.Contains(buf.Bytes(), []byte(`"msg":"d"`)))
			logger.Info("i")
			assert.Equal(t, tt.infoOut, bytes.Contains(buf.Bytes(), []byte(`"msg":"i"`)))
			logger.Warn("w")
			assert.Equal(t, tt.warnOut, bytes.Contains(buf.Bytes(), []byte(`"msg":"w"`)))
		})
	}
}

func TestSetupLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: "text"}}, &buf)
	logger.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 8080}}
	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"PANEL_DATA_DIR",
		"PANEL_SERVER_HOST",
		"PANEL_SERVER_PORT",
		"PANEL_DATABASE_DSN",
		"PANEL_LOG_LEVEL",
		"PANEL_LOG_FORMAT",
		"PANEL_AUTH_SHARED_SECRET",
		"PANEL_LIFECYCLE_RESTART_SETTLE_DELAY",
		"PANEL_BILLING_ROUNDING",
		"PANEL_SECURITY_ENCRYPTION_PASSPHRASE",
		"PANEL_SECURITY_ENCRYPTION_SALT",
		"PANEL_CATALOG_FILE",
		"PANEL_GATEWAY_URL",
		"PANEL_GATEWAY_API_KEY",
		"PANEL_GATEWAY_PANEL_URL",
		"PANEL_GATEWAY_ROLE_EXPR",
	} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
