package provider

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// Provider IDs
const (
	IDOpenExchangeRates = "openexchangerates"
	IDExchangeRateAPI   = "exchangerateapi"
	IDCurrencyAPI       = "currencyapi"
	IDGoldAPI           = "goldapi"
	IDMetalsDev         = "metalsdev"
	IDMetalPriceAPI     = "metalpriceapi"
	IDCoinMarketCap     = "coinmarketcap"
	IDCoinGecko         = "coingecko"
	IDBinance           = "binance"
	IDYahoo             = "yahoo"
	IDStatic            = "static"
)

// DefaultPriority returns the built-in fallback order per data type.
func DefaultPriority() map[core.DataType][]string {
	return map[core.DataType][]string{
		core.DataTypeFX:     {IDOpenExchangeRates, IDExchangeRateAPI, IDCurrencyAPI, IDStatic},
		core.DataTypeMetals: {IDGoldAPI, IDMetalsDev, IDMetalPriceAPI, IDYahoo, IDStatic},
		core.DataTypeCrypto: {IDCoinMarketCap, IDCoinGecko, IDBinance, IDStatic},
	}
}

// Settings is the mutable input used to build a Config.
type Settings struct {
	// Credentials maps provider ID to API key
	Credentials map[string]string
	// Priority overrides the fallback order per data type
	Priority     map[core.DataType][]string
	Timeout      time.Duration
	UserAgent    string
	AllowNetwork bool
}

// Config is the provider configuration read once at startup.
// It is immutable; accessors return copies.
type Config struct {
	credentials  map[string]string
	priority     map[core.DataType][]string
	timeout      time.Duration
	userAgent    string
	allowNetwork bool
}

// NewConfig copies s. Missing or placeholder credentials leave the
// matching adapter unconfigured rather than failing startup.
func NewConfig(s Settings) Config {
	creds := make(map[string]string, len(s.Credentials))
	for id, v := range s.Credentials {
		v = strings.TrimSpace(v)
		if v == "" || IsPlaceholder(v) {
			continue
		}
		creds[strings.ToLower(id)] = v
	}

	priority := DefaultPriority()
	for dt, ids := range s.Priority {
		if len(ids) > 0 {
			priority[dt] = slices.Clone(ids)
		}
	}
	if !s.AllowNetwork {
		for dt := range priority {
			priority[dt] = []string{IDStatic}
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := s.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return Config{
		credentials:  creds,
		priority:     priority,
		timeout:      timeout,
		userAgent:    ua,
		allowNetwork: s.AllowNetwork,
	}
}

// Credential returns the API key for a provider, or "".
func (c Config) Credential(id string) string {
	return c.credentials[id]
}

// Priority returns the fallback order for a data type.
func (c Config) Priority(dt core.DataType) []string {
	return slices.Clone(c.priority[dt])
}

// Priorities returns a copy of every fallback order.
func (c Config) Priorities() map[core.DataType][]string {
	out := make(map[core.DataType][]string, len(c.priority))
	for dt, ids := range c.priority {
		out[dt] = slices.Clone(ids)
	}
	return out
}

func (c Config) Timeout() time.Duration { return c.timeout }
func (c Config) UserAgent() string      { return c.userAgent }
func (c Config) AllowNetwork() bool     { return c.allowNetwork }

// ConfiguredIDs lists providers with a credential, sorted.
func (c Config) ConfiguredIDs() []string {
	return slices.Sorted(maps.Keys(c.credentials))
}

// IsPlaceholder reports values copied verbatim from example env files.
func IsPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	switch {
	case strings.HasPrefix(lower, "your_"), strings.HasPrefix(lower, "your-"):
		return true
	case strings.HasPrefix(lower, "<") && strings.HasSuffix(lower, ">"):
		return true
	case lower == "changeme", lower == "xxx", lower == "todo":
		return true
	}
	return false
}
