package metalsdev

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

const (
	baseURL = "https://api.metals.dev/v1"
)

type latestResponse struct {
	Status     string             `json:"status"`
	ErrorCode  int                `json:"error_code"`
	ErrorMsg   string             `json:"error_message"`
	Currency   string             `json:"currency"`
	Unit       string             `json:"unit"`
	Metals     map[string]float64 `json:"metals"`
	Timestamps struct {
		Metal string `json:"metal"`
	} `json:"timestamps"`
}

// MetalsDev serves the latest spot prices only.
type MetalsDev struct {
	http    *provider.HTTPClient
	baseURL string
	apiKey  string
}

// New creates a new metals.dev adapter
func New(apiKey string) *MetalsDev {
	return &MetalsDev{
		http:    provider.NewHTTPClient(provider.DefaultTimeout, ""),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// NewWithBaseURL creates an adapter with a custom base URL (for testing)
func NewWithBaseURL(apiKey, url string) *MetalsDev {
	m := New(apiKey)
	m.baseURL = url
	return m
}

// WithHTTPClient replaces the transport.
func (m *MetalsDev) WithHTTPClient(c *provider.HTTPClient) *MetalsDev {
	m.http = c
	return m
}

func (m *MetalsDev) ID() string              { return provider.IDMetalsDev }
func (m *MetalsDev) DataType() core.DataType { return core.DataTypeMetals }
func (m *MetalsDev) Configured() bool        { return m.apiKey != "" }

// Fetch retrieves the latest prices in USD per troy ounce and converts to grams.
func (m *MetalsDev) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	if !m.Configured() {
		return nil, provider.Errorf(m.ID(), provider.KindUnavailable, "api key not configured")
	}
	if !req.IsLatest() {
		return nil, provider.Errorf(m.ID(), provider.KindNotFound,
			"historical prices not supported (%s)", core.FormatDate(req.Date))
	}

	u := fmt.Sprintf("%s/latest?api_key=%s&currency=USD&unit=toz", m.baseURL, url.QueryEscape(m.apiKey))
	var resp latestResponse
	if err := m.http.GetJSON(ctx, m.ID(), u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		kind := provider.KindMalformed
		if resp.ErrorCode != 0 {
			kind = provider.KindForStatus(resp.ErrorCode)
		}
		return nil, provider.Errorf(m.ID(), kind, "api error: %s", resp.ErrorMsg)
	}

	rates := make(map[string]float64, len(provider.MetalSymbols))
	for _, sym := range provider.MetalSymbols {
		name := provider.MetalNames[sym]
		price, ok := resp.Metals[name]
		if !ok {
			price = resp.Metals[sym]
		}
		if price > 0 {
			rates[name] = provider.PerGram(price)
		}
	}
	if len(rates) == 0 {
		return nil, provider.Errorf(m.ID(), provider.KindNotFound, "no metal prices in response")
	}

	fetchedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, resp.Timestamps.Metal); err == nil {
		fetchedAt = ts.UTC()
	}

	return &provider.RawPriceData{
		Payload:   core.Payload{Rates: rates},
		FetchedAt: fetchedAt,
	}, nil
}
