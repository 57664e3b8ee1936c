package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://api.binance.com"
	quote   = "USDT"
)

type coin struct {
	Symbol string
	Name   string
}

// Coins quoted against USDT, ordered by typical market cap. Binance has no
// names or ranks, so both come from this list.
var coins = []coin{
	{"BTC", "Bitcoin"},
	{"ETH", "Ethereum"},
	{"BNB", "BNB"},
	{"SOL", "Solana"},
	{"XRP", "XRP"},
	{"USDC", "USDC"},
	{"ADA", "Cardano"},
	{"AVAX", "Avalanche"},
	{"DOGE", "Dogecoin"},
	{"TRX", "TRON"},
	{"DOT", "Polkadot"},
	{"LINK", "Chainlink"},
	{"TON", "Toncoin"},
	{"SHIB", "Shiba Inu"},
	{"LTC", "Litecoin"},
	{"BCH", "Bitcoin Cash"},
	{"UNI", "Uniswap"},
	{"XLM", "Stellar"},
	{"ATOM", "Cosmos"},
	{"ETC", "Ethereum Classic"},
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Binance reads spot USDT pairs, treating USDT as USD. Latest prices come
// from one ticker call; past dates use the daily kline close per coin.
type Binance struct {
	http    *provider.HTTPClient
	baseURL string
}

// New creates a new Binance adapter. No key is needed for market data.
func New() *Binance {
	return &Binance{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
	}
}

// NewWithBaseURL creates a Binance adapter with custom base URL (for testing)
func NewWithBaseURL(url string) *Binance {
	b := New()
	b.baseURL = url
	return b
}

// WithHTTPClient replaces the transport.
func (b *Binance) WithHTTPClient(h *provider.HTTPClient) *Binance {
	b.http = h
	return b
}

func (b *Binance) ID() string              { return provider.IDBinance }
func (b *Binance) DataType() core.DataType { return core.DataTypeCrypto }
func (b *Binance) Configured() bool        { return true }

func (b *Binance) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if req.IsLatest() {
		return b.fetchLatest(ctx)
	}
	return b.fetchHistory(ctx, core.Day(req.Date))
}

func (b *Binance) fetchLatest(ctx context.Context) (*provider.RawPriceData, error) {
	var tickers []tickerPrice
	if err := b.http.GetJSON(ctx, b.ID(), b.baseURL+"/api/v3/ticker/price", nil, &tickers); err != nil {
		return nil, err
	}

	prices := make(map[string]string, len(tickers))
	for _, t := range tickers {
		prices[t.Symbol] = t.Price
	}

	assets := make(map[string]core.CryptoAsset)
	for i, c := range coins {
		price, err := strconv.ParseFloat(prices[c.Symbol+quote], 64)
		if err != nil || price <= 0 {
			continue
		}
		assets[c.Symbol] = core.CryptoAsset{Name: c.Name, Price: price, Rank: i + 1}
	}
	if len(assets) == 0 {
		return nil, provider.Errorf(b.ID(), provider.KindNotFound, "no %s pairs in ticker", quote)
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Assets: assets},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (b *Binance) fetchHistory(ctx context.Context, date time.Time) (*provider.RawPriceData, error) {
	assets := make(map[string]core.CryptoAsset)

	for i, c := range coins {
		url := fmt.Sprintf("%s/api/v3/klines?symbol=%s%s&interval=1d&startTime=%d&limit=1",
			b.baseURL, c.Symbol, quote, date.UnixMilli())

		var klines [][]any
		if err := b.http.GetJSON(ctx, b.ID(), url, nil, &klines); err != nil {
			// unknown pairs come back as 400
			var pe *provider.Error
			if errors.As(err, &pe) && (pe.Kind == provider.KindNotFound || pe.Kind == provider.KindMalformed) {
				continue
			}
			return nil, err
		}

		price, ok := dailyClose(klines, date)
		if !ok {
			continue
		}
		assets[c.Symbol] = core.CryptoAsset{Name: c.Name, Price: price, Rank: i + 1}
	}

	if len(assets) == 0 {
		return nil, provider.Errorf(b.ID(), provider.KindNotFound, "no klines for %s", core.FormatDate(date))
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Assets: assets},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// dailyClose returns the close of the kline opening exactly at date.
// A pair listed after date returns a later kline, which is ignored.
func dailyClose(klines [][]any, date time.Time) (float64, bool) {
	if len(klines) == 0 || len(klines[0]) < 5 {
		return 0, false
	}
	k := klines[0]

	openTime, _ := k[0].(float64)
	if int64(openTime) != date.UnixMilli() {
		return 0, false
	}
	closeStr, _ := k[4].(string)
	price, err := strconv.ParseFloat(closeStr, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
