// Package app assembles the pricing service from a *config.Config.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/api"
	"github.com/newthinker/nisab/internal/cadence"
	"github.com/newthinker/nisab/internal/config"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/metrics"
	"github.com/newthinker/nisab/internal/notifier"
	"github.com/newthinker/nisab/internal/notifier/telegram"
	"github.com/newthinker/nisab/internal/notifier/webhook"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/provider/binance"
	"github.com/newthinker/nisab/internal/provider/coingecko"
	"github.com/newthinker/nisab/internal/provider/coinmarketcap"
	"github.com/newthinker/nisab/internal/provider/currencyapi"
	"github.com/newthinker/nisab/internal/provider/exchangerateapi"
	"github.com/newthinker/nisab/internal/provider/goldapi"
	"github.com/newthinker/nisab/internal/provider/metalpriceapi"
	"github.com/newthinker/nisab/internal/provider/metalsdev"
	"github.com/newthinker/nisab/internal/provider/openexchangerates"
	"github.com/newthinker/nisab/internal/provider/static"
	"github.com/newthinker/nisab/internal/provider/yahoo"
	"github.com/newthinker/nisab/internal/repository"
	"github.com/newthinker/nisab/internal/scheduler"
	"github.com/newthinker/nisab/internal/storage/archive"
	"github.com/newthinker/nisab/internal/storage/local"
	"github.com/newthinker/nisab/internal/storage/remote"
	"github.com/newthinker/nisab/internal/syncer"
)

// App holds the wired components. Fields are read-only after New.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Metrics    *metrics.Registry
	Providers  provider.Config
	Registry   *provider.Registry
	Local      local.Store
	Remote     *remote.Store
	Repository *repository.Repository
	Syncer     *syncer.Syncer
	Scheduler  *scheduler.Scheduler
	Notifiers  *notifier.Registry

	mu      sync.Mutex
	closed  bool
	started time.Time
}

// ProviderSettings converts the providers section into the immutable
// provider configuration.
func ProviderSettings(cfg *config.Config) (provider.Config, error) {
	priority := make(map[core.DataType][]string, len(cfg.Providers.Priority))
	for name, ids := range cfg.Providers.Priority {
		dt, err := core.ParseDataType(name)
		if err != nil {
			return provider.Config{}, err
		}
		priority[dt] = ids
	}
	return provider.NewConfig(provider.Settings{
		Credentials:  cfg.Providers.Keys,
		Priority:     priority,
		Timeout:      cfg.Providers.Timeout,
		UserAgent:    cfg.Providers.UserAgent,
		AllowNetwork: cfg.Providers.AllowNetwork,
	}), nil
}

// Adapters builds every known adapter sharing one HTTP client.
func Adapters(pc provider.Config) []provider.Adapter {
	h := provider.NewHTTPClient(pc.Timeout(), pc.UserAgent())
	adapters := []provider.Adapter{
		openexchangerates.New(pc.Credential(provider.IDOpenExchangeRates)).WithHTTPClient(h),
		exchangerateapi.New().WithHTTPClient(h),
		currencyapi.New().WithHTTPClient(h),
		goldapi.New(pc.Credential(provider.IDGoldAPI)).WithHTTPClient(h),
		metalsdev.New(pc.Credential(provider.IDMetalsDev)).WithHTTPClient(h),
		metalpriceapi.New(pc.Credential(provider.IDMetalPriceAPI)).WithHTTPClient(h),
		coinmarketcap.New(pc.Credential(provider.IDCoinMarketCap)).WithHTTPClient(h),
		coingecko.New(pc.Credential(provider.IDCoinGecko)).WithHTTPClient(h),
		binance.New().WithHTTPClient(h),
		yahoo.New().WithHTTPClient(h),
	}
	return append(adapters, static.All()...)
}

// Notifiers registers every report channel with complete settings.
func Notifiers(cfg *config.Config) *notifier.Registry {
	reg := notifier.NewRegistry()
	n := cfg.Notify
	if n.Webhook.URL != "" {
		reg.Register(webhook.New(n.Webhook.URL, n.Webhook.Headers))
	}
	if n.Telegram.BotToken != "" && n.Telegram.ChatID != "" {
		reg.Register(telegram.New(n.Telegram.BotToken, n.Telegram.ChatID))
	}
	return reg
}

// New wires every component. The caller must Close the app.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, started: time.Now().UTC()}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.NewRegistry()
	}

	pc, err := ProviderSettings(cfg)
	if err != nil {
		return nil, err
	}
	a.Providers = pc

	a.Registry, err = provider.NewRegistry(pc, Adapters(pc), logger.Named("provider"))
	if err != nil {
		return nil, fmt.Errorf("building provider registry: %w", err)
	}
	if a.Metrics != nil {
		a.Registry.SetObserver(a.Metrics)
	}

	a.Local, err = local.Open(ctx, local.Config{
		Driver: cfg.Storage.Local.Driver,
		DSN:    cfg.Storage.Local.DSN,
		Redis: local.RedisConfig{
			Addr:      cfg.Storage.Local.Redis.Addr,
			Password:  cfg.Storage.Local.Redis.Password,
			DB:        cfg.Storage.Local.Redis.DB,
			Namespace: cfg.Storage.Local.Redis.Namespace,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	a.Remote, err = openRemote(cfg, logger)
	if err != nil {
		a.Local.Close()
		return nil, err
	}

	policy := cadence.Policy{
		DailyWindowDays:  cfg.Cadence.DailyWindowDays,
		WeeklyWindowDays: cfg.Cadence.WeeklyWindowDays,
	}
	repoOpts := []repository.Option{
		repository.WithPolicy(policy),
		repository.WithLogger(logger.Named("repository")),
		repository.WithSingleflight(true),
	}
	syncOpts := []syncer.Option{
		syncer.WithLogger(logger.Named("sync")),
		syncer.WithWorkers(cfg.Sync.Workers),
		syncer.WithRetry(syncer.RetryConfig{
			MaxAttempts:    cfg.Sync.MaxAttempts,
			InitialBackoff: cfg.Sync.InitialBackoff,
			MaxBackoff:     cfg.Sync.MaxBackoff,
			Multiplier:     cfg.Sync.Multiplier,
		}),
	}
	if a.Remote != nil {
		repoOpts = append(repoOpts, repository.WithRemote(a.Remote))
		syncOpts = append(syncOpts, syncer.WithRemote(a.Remote))
	}
	if a.Metrics != nil {
		repoOpts = append(repoOpts, repository.WithMetrics(a.Metrics))
		syncOpts = append(syncOpts, syncer.WithMetrics(a.Metrics))
	}

	a.Repository = repository.New(a.Local, a.Registry, repoOpts...)
	a.Syncer = syncer.New(a.Repository, syncOpts...)
	a.Scheduler = scheduler.New(a.Syncer, scheduler.Config{
		Interval:       cfg.Sync.Interval,
		LookbackMonths: cfg.Sync.LookbackMonths,
	}, logger.Named("scheduler"))

	a.Notifiers = Notifiers(cfg)
	if a.Notifiers.Len() > 0 {
		a.Scheduler.SetNotifier(a.Notifiers, cfg.Notify.OnlyFailures)
	}

	logger.Info("pricing engine ready",
		zap.String("local_driver", cfg.Storage.Local.Driver),
		zap.Bool("remote", a.Remote != nil),
		zap.Bool("allow_network", pc.AllowNetwork()),
		zap.Strings("credentials", pc.ConfiguredIDs()),
		zap.Strings("notifiers", a.Notifiers.Names()),
	)
	return a, nil
}

// openRemote returns nil when the remote tier is disabled or incomplete.
func openRemote(cfg *config.Config, logger *zap.Logger) (*remote.Store, error) {
	rc := cfg.Storage.Remote
	if !rc.Enabled {
		return nil, nil
	}
	if !cfg.RemoteUsable() {
		logger.Warn("remote tier disabled: incomplete configuration", zap.String("type", rc.Type))
		return nil, nil
	}

	var blobs archive.Storage
	var err error
	switch rc.Type {
	case "localfs":
		blobs, err = archive.NewLocalFS(rc.Path)
	default:
		blobs, err = archive.NewS3(archive.S3Config{
			Bucket:    rc.S3.Bucket,
			Endpoint:  rc.S3.Endpoint,
			Region:    rc.S3.Region,
			AccessKey: rc.S3.AccessKey,
			SecretKey: rc.S3.SecretKey,
			Prefix:    rc.S3.Prefix,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening remote store: %w", err)
	}
	return remote.New(blobs), nil
}

// Server builds the HTTP API over the app's components.
func (a *App) Server() (*api.Server, error) {
	return api.NewServer(api.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		APIKey:      a.cfg.Server.APIKey,
		MetricsPath: a.cfg.Metrics.Path,
		MaxJobs:     a.cfg.Server.MaxJobs,
		JobTTL:      time.Duration(a.cfg.Server.JobTTLHours) * time.Hour,
	}, api.Dependencies{
		Repository: a.Repository,
		Registry:   a.Registry,
		Syncer:     a.Syncer,
		Metrics:    a.Metrics,
		Health:     a.Stats,
	}, a.logger.Named("http"))
}

// AutoSync reports whether the background scheduler should run.
func (a *App) AutoSync() bool {
	return a.cfg.Sync.Auto
}

// Stats returns application statistics
func (a *App) Stats() map[string]any {
	return map[string]any{
		"uptime":    time.Since(a.started).Round(time.Second).String(),
		"remote":    a.Remote != nil,
		"scheduler": a.Scheduler.Stats(),
	}
}

// Close stops the scheduler and releases the local store.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	a.Scheduler.Stop()
	if err := a.Local.Close(); err != nil {
		return core.WrapError(core.ErrStoreIO, err)
	}
	return nil
}
