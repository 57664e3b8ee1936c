package provider

import (
	"testing"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestNewConfig_DropsPlaceholders(t *testing.T) {
	cfg := NewConfig(Settings{
		AllowNetwork: true,
		Credentials: map[string]string{
			IDGoldAPI:           "real-key",
			IDCoinMarketCap:     "your_api_key_here",
			IDOpenExchangeRates: "  ",
			IDMetalsDev:         "<metals-dev-key>",
		},
	})

	assert.Equal(t, "real-key", cfg.Credential(IDGoldAPI))
	assert.Empty(t, cfg.Credential(IDCoinMarketCap))
	assert.Empty(t, cfg.Credential(IDOpenExchangeRates))
	assert.Empty(t, cfg.Credential(IDMetalsDev))
	assert.Equal(t, []string{IDGoldAPI}, cfg.ConfiguredIDs())
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig(Settings{AllowNetwork: true})

	assert.Equal(t, DefaultTimeout, cfg.Timeout())
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent())
	assert.Equal(t, DefaultPriority()[core.DataTypeMetals], cfg.Priority(core.DataTypeMetals))
}

func TestNewConfig_Immutable(t *testing.T) {
	prio := map[core.DataType][]string{core.DataTypeFX: {IDCurrencyAPI, IDStatic}}
	cfg := NewConfig(Settings{AllowNetwork: true, Priority: prio, Timeout: 5 * time.Second})

	prio[core.DataTypeFX][0] = "mutated"
	got := cfg.Priority(core.DataTypeFX)
	assert.Equal(t, IDCurrencyAPI, got[0])

	got[0] = "mutated again"
	assert.Equal(t, IDCurrencyAPI, cfg.Priority(core.DataTypeFX)[0])
}

func TestNewConfig_NetworkDisabled(t *testing.T) {
	cfg := NewConfig(Settings{AllowNetwork: false})
	for _, dt := range core.AllDataTypes() {
		assert.Equal(t, []string{IDStatic}, cfg.Priority(dt))
	}
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("your_key"))
	assert.True(t, IsPlaceholder("CHANGEME"))
	assert.False(t, IsPlaceholder("sk-123"))
}
