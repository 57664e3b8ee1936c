package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/nisab/internal/app"
	"github.com/newthinker/nisab/internal/config"
	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "nisab",
	Short: "Pricing snapshot cache and cadence engine",
	Long: `nisab serves FX, precious metal and crypto price snapshots from a
local cache, a shared remote bucket and a chain of upstream providers.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when one was given; otherwise defaults
// plus environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if debug {
		return logger.NewWithLevel(true, "debug")
	}
	return logger.NewWithLevel(cfg.Log.Development, cfg.Log.Level)
}

// withApp handles common setup and teardown for commands that need the
// wired engine.
func withApp(ctx context.Context, fn func(a *app.App, log *zap.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing engine", zap.Error(err))
		}
	}()

	return fn(a, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDateFlag parses a YYYY-MM-DD flag, falling back to def when empty.
func parseDateFlag(name, value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s (expected YYYY-MM-DD): %w", name, err)
	}
	return d, nil
}
