package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/nisab/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	cfgPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090

storage:
  local:
    driver: postgres
    dsn: "postgres://localhost:5432/nisab"
  remote:
    enabled: true
    type: localfs
    path: "/tmp/nisab/remote"

providers:
  timeout: 5s
  priority:
    fx: [currencyapi, static]

sync:
  interval: 1h
  workers: 4
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Local.Driver)
	assert.Equal(t, "localfs", cfg.Storage.Remote.Type)
	assert.True(t, cfg.RemoteUsable())
	assert.Equal(t, 5*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, []string{"currencyapi", "static"}, cfg.Providers.Priority["fx"])
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, 4, cfg.Sync.Workers)

	// untouched keys keep their defaults
	assert.Equal(t, 12, cfg.Sync.LookbackMonths)
	assert.Equal(t, 30, cfg.Cadence.DailyWindowDays)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server, cfg.Server)
	assert.Equal(t, 6*time.Hour, cfg.Sync.Interval)
	assert.True(t, cfg.Providers.AllowNetwork)
}

func TestLoad_CredentialEnvVars(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	t.Setenv("GOLDAPI_KEY", "goldapi-key")
	t.Setenv("OPENEXCHANGERATES_APP_ID", "oxr-id")
	t.Setenv("R2_ENABLED", "true")
	t.Setenv("R2_BUCKET", "pricing")
	t.Setenv("R2_ACCESS_KEY_ID", "ak")
	t.Setenv("R2_SECRET_ACCESS_KEY", "sk")
	t.Setenv("R2_ENDPOINT_URL", "https://example.r2.cloudflarestorage.com")
	t.Setenv("PRICING_SYNC_INTERVAL_SECONDS", "600")
	t.Setenv("PRICING_LOOKBACK_MONTHS", "24")
	t.Setenv("PRICING_ALLOW_NETWORK", "false")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot")
	t.Setenv("TELEGRAM_CHAT_ID", "-100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "goldapi-key", cfg.Providers.Keys["goldapi"])
	assert.Equal(t, "oxr-id", cfg.Providers.Keys["openexchangerates"])
	assert.Equal(t, "pricing", cfg.Storage.Remote.S3.Bucket)
	assert.True(t, cfg.RemoteUsable())
	assert.Equal(t, 10*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 24, cfg.Sync.LookbackMonths)
	assert.False(t, cfg.Providers.AllowNetwork)
	assert.Equal(t, "bot", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, "-100", cfg.Notify.Telegram.ChatID)
	assert.True(t, cfg.Notify.OnlyFailures)
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	t.Setenv("MY_PG_DSN", "postgres://db/nisab")
	cfgPath := writeConfig(t, `
storage:
  local:
    driver: postgres
    dsn: "${MY_PG_DSN}"
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/nisab", cfg.Storage.Local.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRemoteUsable_IncompleteBucket(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Remote.Enabled = true
	cfg.Storage.Remote.S3.Bucket = "pricing"
	assert.False(t, cfg.RemoteUsable(), "missing credentials disable the remote tier")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("expected default max_attempts 3, got %d", cfg.Sync.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr *core.Error
	}{
		{"valid config", func(c *Config) {}, nil},
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"invalid port - too high", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"weekly window below daily", func(c *Config) { c.Cadence.WeeklyWindowDays = 10 }, core.ErrConfigInvalid},
		{"unknown driver", func(c *Config) { c.Storage.Local.Driver = "mongo" }, core.ErrConfigInvalid},
		{"sqlite without path", func(c *Config) { c.Storage.Local.DSN = "" }, core.ErrConfigMissing},
		{"redis without addr", func(c *Config) {
			c.Storage.Local.Driver = "redis"
			c.Storage.Local.Redis.Addr = ""
		}, core.ErrConfigMissing},
		{"unknown remote type", func(c *Config) {
			c.Storage.Remote.Enabled = true
			c.Storage.Remote.Type = "gcs"
		}, core.ErrConfigInvalid},
		{"unknown priority data type", func(c *Config) {
			c.Providers.Priority = map[string][]string{"stocks": {"static"}}
		}, core.ErrConfigInvalid},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }, core.ErrConfigInvalid},
		{"zero attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }, core.ErrConfigInvalid},
		{"auto sync without interval", func(c *Config) { c.Sync.Interval = 0 }, core.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
