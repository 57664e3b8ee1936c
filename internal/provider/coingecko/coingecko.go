package coingecko

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://api.coingecko.com/api/v3"

	defaultHistoryCoins = 20
	defaultPause        = 500 * time.Millisecond
)

type coin struct {
	Symbol string
	ID     string
}

// Coins with a known CoinGecko ID, ordered by typical market cap.
// Historical lookups are per coin, so only this list is covered.
var knownCoins = []coin{
	{"BTC", "bitcoin"},
	{"ETH", "ethereum"},
	{"USDT", "tether"},
	{"BNB", "binancecoin"},
	{"SOL", "solana"},
	{"XRP", "ripple"},
	{"USDC", "usd-coin"},
	{"ADA", "cardano"},
	{"AVAX", "avalanche-2"},
	{"DOGE", "dogecoin"},
	{"TRX", "tron"},
	{"DOT", "polkadot"},
	{"LINK", "chainlink"},
	{"MATIC", "matic-network"},
	{"TON", "the-open-network"},
	{"SHIB", "shiba-inu"},
	{"LTC", "litecoin"},
	{"BCH", "bitcoin-cash"},
	{"UNI", "uniswap"},
	{"XLM", "stellar"},
	{"ATOM", "cosmos"},
	{"XMR", "monero"},
	{"ETC", "ethereum-classic"},
	{"FIL", "filecoin"},
	{"HBAR", "hedera-hashgraph"},
	{"APT", "aptos"},
	{"ARB", "arbitrum"},
	{"NEAR", "near"},
	{"VET", "vechain"},
	{"OP", "optimism"},
}

type marketEntry struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	CurrentPrice  float64 `json:"current_price"`
	MarketCapRank int     `json:"market_cap_rank"`
}

type historyResponse struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// CoinGecko is the free crypto source. Today's prices come from one
// markets call; past dates need one history call per coin.
type CoinGecko struct {
	http         *provider.HTTPClient
	baseURL      string
	apiKey       string
	historyCoins int
	pause        time.Duration
}

// New creates a new CoinGecko adapter. apiKey is an optional demo key.
func New(apiKey string) *CoinGecko {
	return &CoinGecko{
		http:         provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL:      baseURL,
		apiKey:       apiKey,
		historyCoins: defaultHistoryCoins,
		pause:        defaultPause,
	}
}

// NewWithBaseURL creates a CoinGecko adapter with custom base URL (for testing)
func NewWithBaseURL(apiKey, url string) *CoinGecko {
	c := New(apiKey)
	c.baseURL = url
	c.pause = 0
	return c
}

// WithHTTPClient replaces the transport.
func (c *CoinGecko) WithHTTPClient(h *provider.HTTPClient) *CoinGecko {
	c.http = h
	return c
}

// WithHistoryCoins limits how many coins a historical fetch covers.
func (c *CoinGecko) WithHistoryCoins(n int) *CoinGecko {
	if n > 0 {
		c.historyCoins = n
	}
	return c
}

func (c *CoinGecko) ID() string              { return provider.IDCoinGecko }
func (c *CoinGecko) DataType() core.DataType { return core.DataTypeCrypto }
func (c *CoinGecko) Configured() bool        { return true }

func (c *CoinGecko) header() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": c.apiKey}
}

// Fetch retrieves USD prices for the date.
func (c *CoinGecko) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if req.IsLatest() {
		return c.fetchMarkets(ctx)
	}
	return c.fetchHistory(ctx, req.Date)
}

func (c *CoinGecko) fetchMarkets(ctx context.Context) (*provider.RawPriceData, error) {
	url := fmt.Sprintf("%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=100&page=1", c.baseURL)

	var entries []marketEntry
	if err := c.http.GetJSON(ctx, c.ID(), url, c.header(), &entries); err != nil {
		return nil, err
	}

	assets := make(map[string]core.CryptoAsset, len(entries))
	for _, e := range entries {
		sym := provider.NormalizeCode(e.Symbol)
		if sym == "" || e.CurrentPrice <= 0 {
			continue
		}
		// keep the higher-ranked coin when symbols collide
		if prev, ok := assets[sym]; ok && prev.Rank > 0 && prev.Rank <= e.MarketCapRank {
			continue
		}
		assets[sym] = core.CryptoAsset{Name: e.Name, Price: e.CurrentPrice, Rank: e.MarketCapRank}
	}
	if len(assets) == 0 {
		return nil, provider.Errorf(c.ID(), provider.KindNotFound, "no market data")
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Assets: assets},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *CoinGecko) fetchHistory(ctx context.Context, date time.Time) (*provider.RawPriceData, error) {
	dateParam := date.Format("02-01-2006")
	assets := make(map[string]core.CryptoAsset)

	coins := knownCoins
	if len(coins) > c.historyCoins {
		coins = coins[:c.historyCoins]
	}

	for i, cn := range coins {
		if i > 0 && c.pause > 0 {
			select {
			case <-time.After(c.pause):
			case <-ctx.Done():
				return nil, provider.NewError(c.ID(), provider.KindTransient, ctx.Err())
			}
		}

		url := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false", c.baseURL, cn.ID, dateParam)
		var resp historyResponse
		if err := c.http.GetJSON(ctx, c.ID(), url, c.header(), &resp); err != nil {
			var pe *provider.Error
			if errors.As(err, &pe) && (pe.Kind == provider.KindNotFound || pe.Kind == provider.KindMalformed) {
				continue
			}
			return nil, err
		}

		price := resp.MarketData.CurrentPrice["usd"]
		if price <= 0 {
			continue
		}
		assets[cn.Symbol] = core.CryptoAsset{Name: resp.Name, Price: price, Rank: i + 1}
	}

	if len(assets) == 0 {
		return nil, provider.Errorf(c.ID(), provider.KindNotFound, "no history for %s", core.FormatDate(date))
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Assets: assets},
		FetchedAt: time.Now().UTC(),
	}, nil
}
