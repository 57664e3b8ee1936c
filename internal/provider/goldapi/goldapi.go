package goldapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://www.goldapi.io/api"
)

type priceResponse struct {
	Timestamp int64   `json:"timestamp"`
	Metal     string  `json:"metal"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Error     string  `json:"error"`
}

// GoldAPI serves current and historical spot prices, one metal per call.
type GoldAPI struct {
	http    *provider.HTTPClient
	baseURL string
	apiKey  string
}

// New creates a new GoldAPI adapter
func New(apiKey string) *GoldAPI {
	return &GoldAPI{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// NewWithBaseURL creates an adapter with a custom base URL (for testing)
func NewWithBaseURL(apiKey, url string) *GoldAPI {
	g := New(apiKey)
	g.baseURL = url
	return g
}

// WithHTTPClient replaces the transport.
func (g *GoldAPI) WithHTTPClient(c *provider.HTTPClient) *GoldAPI {
	g.http = c
	return g
}

func (g *GoldAPI) ID() string              { return provider.IDGoldAPI }
func (g *GoldAPI) DataType() core.DataType { return core.DataTypeMetals }
func (g *GoldAPI) Configured() bool        { return g.apiKey != "" }

// Fetch retrieves per-gram USD prices for every metal it can.
// A metal that is missing or unparsable is skipped; throttling, auth and
// transport errors abort the whole fetch.
func (g *GoldAPI) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if !g.Configured() {
		return nil, provider.Errorf(g.ID(), provider.KindUnavailable, "api key not configured")
	}

	header := map[string]string{"x-access-token": g.apiKey}
	rates := make(map[string]float64, len(provider.MetalSymbols))
	var latest int64
	var lastErr error

	for _, sym := range provider.MetalSymbols {
		url := fmt.Sprintf("%s/%s/USD", g.baseURL, sym)
		if !req.IsLatest() {
			url += "/" + req.Date.Format("20060102")
		}

		var resp priceResponse
		if err := g.http.GetJSON(ctx, g.ID(), url, header, &resp); err != nil {
			var pe *provider.Error
			if errors.As(err, &pe) && (pe.Kind == provider.KindNotFound || pe.Kind == provider.KindMalformed) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if resp.Error != "" || resp.Price <= 0 {
			lastErr = provider.Errorf(g.ID(), provider.KindNotFound, "%s: %s", sym, resp.Error)
			continue
		}

		rates[provider.MetalNames[sym]] = provider.PerGram(resp.Price)
		if resp.Timestamp > latest {
			latest = resp.Timestamp
		}
	}

	if len(rates) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, provider.Errorf(g.ID(), provider.KindNotFound, "no metal prices")
	}

	fetchedAt := time.Now().UTC()
	if latest > 0 {
		// goldapi reports milliseconds
		fetchedAt = time.UnixMilli(latest).UTC()
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}
