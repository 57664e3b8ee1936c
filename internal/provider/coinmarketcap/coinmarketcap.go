package coinmarketcap

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://pro-api.coinmarketcap.com"
	limit   = 100
)

type listingsResponse struct {
	Status struct {
		Timestamp    string `json:"timestamp"`
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data []struct {
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
		CMCRank int    `json:"cmc_rank"`
		Quote   struct {
			USD struct {
				Price float64 `json:"price"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// CoinMarketCap serves the top listings by market cap. The basic plan
// has no historical quotes.
type CoinMarketCap struct {
	http    *provider.HTTPClient
	baseURL string
	apiKey  string
}

func New(apiKey string) *CoinMarketCap {
	return &CoinMarketCap{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// NewWithBaseURL creates an adapter with a custom base URL (for testing)
func NewWithBaseURL(apiKey, url string) *CoinMarketCap {
	c := New(apiKey)
	c.baseURL = url
	return c
}

// WithHTTPClient replaces the transport.
func (c *CoinMarketCap) WithHTTPClient(h *provider.HTTPClient) *CoinMarketCap {
	c.http = h
	return c
}

func (c *CoinMarketCap) ID() string              { return provider.IDCoinMarketCap }
func (c *CoinMarketCap) DataType() core.DataType { return core.DataTypeCrypto }
func (c *CoinMarketCap) Configured() bool        { return c.apiKey != "" }

func (c *CoinMarketCap) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if !c.Configured() {
		return nil, provider.Errorf(c.ID(), provider.KindUnavailable, "api key not configured")
	}
	if !req.IsLatest() {
		return nil, provider.Errorf(c.ID(), provider.KindNotFound, "historical quotes not supported")
	}

	url := fmt.Sprintf("%s/v1/cryptocurrency/listings/latest?limit=%d&convert=USD", c.baseURL, limit)
	header := map[string]string{"X-CMC_PRO_API_KEY": c.apiKey}

	var resp listingsResponse
	if err := c.http.GetJSON(ctx, c.ID(), url, header, &resp); err != nil {
		return nil, err
	}
	if resp.Status.ErrorCode != 0 {
		return nil, provider.Errorf(c.ID(), provider.KindForStatus(resp.Status.ErrorCode),
			"api error %d: %s", resp.Status.ErrorCode, resp.Status.ErrorMessage)
	}

	assets := make(map[string]core.CryptoAsset, len(resp.Data))
	for _, d := range resp.Data {
		sym := provider.NormalizeCode(d.Symbol)
		price := d.Quote.USD.Price
		if sym == "" || price <= 0 {
			continue
		}
		if _, dup := assets[sym]; dup {
			continue
		}
		assets[sym] = core.CryptoAsset{Name: d.Name, Price: price, Rank: d.CMCRank}
	}
	if len(assets) == 0 {
		return nil, provider.Errorf(c.ID(), provider.KindNotFound, "no listings")
	}

	fetchedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, resp.Status.Timestamp); err == nil {
		fetchedAt = ts.UTC()
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Assets: assets},
		FetchedAt: fetchedAt,
	}, nil
}
