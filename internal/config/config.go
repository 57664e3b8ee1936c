package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/nisab/internal/core"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Cadence   CadenceConfig   `mapstructure:"cadence"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type StorageConfig struct {
	Local  LocalStorageConfig  `mapstructure:"local"`
	Remote RemoteStorageConfig `mapstructure:"remote"`
}

// LocalStorageConfig selects the local tier backend.
type LocalStorageConfig struct {
	Driver string      `mapstructure:"driver"` // "sqlite", "postgres", "redis" or "memory"
	DSN    string      `mapstructure:"dsn"`    // sqlite file path or postgres DSN
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

// RemoteStorageConfig configures the shared bucket tier.
type RemoteStorageConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "s3" or "localfs"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3 / R2
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// ProvidersConfig holds upstream credentials and fallback order.
type ProvidersConfig struct {
	AllowNetwork bool          `mapstructure:"allow_network"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	// Keys maps provider ID to API key
	Keys map[string]string `mapstructure:"keys"`
	// Priority overrides the fallback order per data type
	Priority map[string][]string `mapstructure:"priority"`
}

type CadenceConfig struct {
	DailyWindowDays  int `mapstructure:"daily_window_days"`
	WeeklyWindowDays int `mapstructure:"weekly_window_days"`
}

// SyncConfig configures backfill runs and the background scheduler.
type SyncConfig struct {
	Auto            bool          `mapstructure:"auto"`
	Interval        time.Duration `mapstructure:"interval"`
	IntervalSeconds int           `mapstructure:"interval_seconds"`
	LookbackMonths  int           `mapstructure:"lookback_months"`
	Workers         int           `mapstructure:"workers"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NotifyConfig selects where scheduled sync reports are sent.
type NotifyConfig struct {
	OnlyFailures bool           `mapstructure:"only_failures"`
	Webhook      WebhookConfig  `mapstructure:"webhook"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// envBindings maps config keys to the environment variables deployments
// already use for them.
var envBindings = map[string]string{
	"providers.keys.openexchangerates": "OPENEXCHANGERATES_APP_ID",
	"providers.keys.goldapi":           "GOLDAPI_KEY",
	"providers.keys.metalsdev":         "METALSDEV_API_KEY",
	"providers.keys.metalpriceapi":     "METALPRICEAPI_KEY",
	"providers.keys.coinmarketcap":     "COINMARKETCAP_API_KEY",
	"providers.keys.coingecko":         "COINGECKO_API_KEY",
	"providers.allow_network":          "PRICING_ALLOW_NETWORK",
	"providers.user_agent":             "PRICING_SYNC_USER_AGENT",
	"storage.remote.enabled":           "R2_ENABLED",
	"storage.remote.s3.endpoint":       "R2_ENDPOINT_URL",
	"storage.remote.s3.bucket":         "R2_BUCKET",
	"storage.remote.s3.access_key":     "R2_ACCESS_KEY_ID",
	"storage.remote.s3.secret_key":     "R2_SECRET_ACCESS_KEY",
	"storage.remote.s3.prefix":         "R2_PREFIX",
	"sync.auto":                        "PRICING_AUTO_SYNC",
	"sync.interval_seconds":            "PRICING_SYNC_INTERVAL_SECONDS",
	"sync.lookback_months":             "PRICING_LOOKBACK_MONTHS",
	"server.api_key":                   "NISAB_API_KEY",
	"notify.webhook.url":               "NISAB_WEBHOOK_URL",
	"notify.telegram.bot_token":        "TELEGRAM_BOT_TOKEN",
	"notify.telegram.chat_id":          "TELEGRAM_CHAT_ID",
}

// Load reads configuration from defaults, an optional YAML file and the
// environment (including a .env file), in increasing precedence.
func Load(path string) (*Config, error) {
	LoadDotenvOnce()

	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Sync.IntervalSeconds > 0 {
		cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	}

	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override keys
// that never appear in the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)

	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("storage.local.driver", d.Storage.Local.Driver)
	v.SetDefault("storage.local.dsn", d.Storage.Local.DSN)
	v.SetDefault("storage.local.redis.addr", d.Storage.Local.Redis.Addr)
	v.SetDefault("storage.local.redis.password", "")
	v.SetDefault("storage.local.redis.db", 0)
	v.SetDefault("storage.local.redis.namespace", d.Storage.Local.Redis.Namespace)
	v.SetDefault("storage.remote.enabled", d.Storage.Remote.Enabled)
	v.SetDefault("storage.remote.type", d.Storage.Remote.Type)
	v.SetDefault("storage.remote.path", d.Storage.Remote.Path)
	v.SetDefault("storage.remote.s3.region", d.Storage.Remote.S3.Region)

	v.SetDefault("providers.allow_network", d.Providers.AllowNetwork)
	v.SetDefault("providers.timeout", d.Providers.Timeout)
	v.SetDefault("providers.user_agent", d.Providers.UserAgent)

	v.SetDefault("cadence.daily_window_days", d.Cadence.DailyWindowDays)
	v.SetDefault("cadence.weekly_window_days", d.Cadence.WeeklyWindowDays)

	v.SetDefault("sync.auto", d.Sync.Auto)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.lookback_months", d.Sync.LookbackMonths)
	v.SetDefault("sync.workers", d.Sync.Workers)
	v.SetDefault("sync.max_attempts", d.Sync.MaxAttempts)
	v.SetDefault("sync.initial_backoff", d.Sync.InitialBackoff)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("sync.multiplier", d.Sync.Multiplier)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("notify.only_failures", d.Notify.OnlyFailures)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Mode:        "release",
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Local: LocalStorageConfig{
				Driver: "sqlite",
				DSN:    "data/pricing.db",
				Redis: RedisConfig{
					Addr:      "localhost:6379",
					Namespace: "nisab",
				},
			},
			Remote: RemoteStorageConfig{
				Type: "s3",
				Path: "data/remote",
			},
		},
		Providers: ProvidersConfig{
			AllowNetwork: true,
			Timeout:      10 * time.Second,
		},
		Cadence: CadenceConfig{
			DailyWindowDays:  30,
			WeeklyWindowDays: 90,
		},
		Sync: SyncConfig{
			Auto:           true,
			Interval:       6 * time.Hour,
			LookbackMonths: 12,
			Workers:        1,
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     3 * time.Second,
			Multiplier:     2,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Notify: NotifyConfig{
			OnlyFailures: true,
		},
	}
}

// RemoteUsable reports whether the remote tier is enabled and has what
// its backend needs. An incomplete bucket config disables the tier
// rather than failing startup.
func (c *Config) RemoteUsable() bool {
	r := c.Storage.Remote
	if !r.Enabled {
		return false
	}
	switch r.Type {
	case "localfs":
		return r.Path != ""
	case "s3", "":
		return r.S3.Bucket != "" && r.S3.AccessKey != "" && r.S3.SecretKey != ""
	}
	return false
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Cadence validation
	if c.Cadence.DailyWindowDays < 0 || c.Cadence.WeeklyWindowDays < c.Cadence.DailyWindowDays {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cadence windows must satisfy 0 <= daily <= weekly, got %d/%d",
				c.Cadence.DailyWindowDays, c.Cadence.WeeklyWindowDays))
	}

	// Local store validation
	switch c.Storage.Local.Driver {
	case "sqlite", "postgres":
		if c.Storage.Local.DSN == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.local.dsn required for driver %s", c.Storage.Local.Driver))
		}
	case "redis":
		if c.Storage.Local.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.local.redis.addr required for driver redis"))
		}
	case "memory":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage.local.driver %q", c.Storage.Local.Driver))
	}

	// Remote store validation
	if c.Storage.Remote.Enabled {
		switch c.Storage.Remote.Type {
		case "s3", "localfs":
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown storage.remote.type %q", c.Storage.Remote.Type))
		}
	}

	// Provider priority keys must name data types
	for dt := range c.Providers.Priority {
		if _, err := core.ParseDataType(dt); err != nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("providers.priority: %w", err))
		}
	}
	if c.Providers.Timeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("providers.timeout cannot be negative, got %s", c.Providers.Timeout))
	}

	// Sync validation
	if c.Sync.Workers < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers))
	}
	if c.Sync.MaxAttempts < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sync.max_attempts must be at least 1, got %d", c.Sync.MaxAttempts))
	}
	if c.Sync.LookbackMonths < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sync.lookback_months cannot be negative, got %d", c.Sync.LookbackMonths))
	}
	if c.Sync.Auto && c.Sync.Interval <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sync.interval must be positive when sync.auto is set"))
	}

	return nil
}
